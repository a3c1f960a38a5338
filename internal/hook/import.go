package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"quill/internal/errs"
	"quill/internal/logging"
	"quill/internal/model"
	"quill/internal/util"
)

// ImportHooks batch-loads templates from path. Supported formats: "json"
// (an array or an object with a "hooks" array) and "txt" (freeform example
// blocks separated by lines starting with an em dash).
func (e *Engine) ImportHooks(ctx context.Context, path, format string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	switch format {
	case "json":
		return e.importJSON(ctx, path, b)
	case "txt":
		return e.importText(ctx, b)
	default:
		return 0, errs.Validationf("unsupported import format %q", format)
	}
}

type jsonHook struct {
	PatternType       string   `json:"pattern_type"`
	Name              string   `json:"name"`
	HookText          string   `json:"hook_text"`
	ExampleText       string   `json:"example_text"`
	MinViews          int      `json:"min_views"`
	AvgEngagementRate float64  `json:"avg_engagement_rate"`
	Tags              []string `json:"tags"`
	UseCases          []string `json:"use_cases"`
	Source            string   `json:"source"`
}

func (e *Engine) importJSON(ctx context.Context, path string, b []byte) (int, error) {
	var hooks []jsonHook
	if err := json.Unmarshal(b, &hooks); err != nil {
		var wrapper struct {
			Hooks []jsonHook `json:"hooks"`
		}
		if err2 := json.Unmarshal(b, &wrapper); err2 != nil {
			return 0, fmt.Errorf("parse hooks json: %w", err)
		}
		hooks = wrapper.Hooks
	}
	imported := 0
	for _, h := range hooks {
		pt := model.PatternCustom
		if h.PatternType != "" {
			parsed, err := model.ParsePatternType(h.PatternType)
			if err != nil {
				logging.Error("hook_import_skip", map[string]any{"error": err.Error()})
				continue
			}
			pt = parsed
		}
		src := h.Source
		if src == "" {
			src = path
		}
		t := &model.HookTemplate{
			PatternType:       pt,
			Name:              h.Name,
			HookText:          h.HookText,
			ExampleText:       h.ExampleText,
			MinObservedViews:  h.MinViews,
			AvgEngagementRate: h.AvgEngagementRate,
			Tags:              h.Tags,
			UseCases:          h.UseCases,
			IsActive:          true,
			Source:            src,
			CreatedAt:         time.Now().UTC(),
		}
		if _, err := e.repo.InsertTemplate(ctx, t); err != nil {
			logging.Error("hook_import_skip", map[string]any{"error": err.Error()})
			continue
		}
		imported++
	}
	logging.Info("hooks_imported", map[string]any{"count": imported, "path": path})
	return imported, nil
}

// importText parses freeform example posts. Blocks are separated by lines
// starting with "—"; blank lines end a block without starting a new one.
func (e *Engine) importText(ctx context.Context, b []byte) (int, error) {
	imported := 0
	var current []string
	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		example := strings.Join(current, "\n")
		current = nil
		if strings.TrimSpace(example) == "" {
			return nil
		}
		if _, err := e.repo.InsertTemplate(ctx, templateFromExample(example)); err != nil {
			return err
		}
		imported++
		return nil
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "—") {
			if err := flush(); err != nil {
				return imported, err
			}
			continue
		}
		current = append(current, line)
	}
	if err := flush(); err != nil {
		return imported, err
	}
	logging.Info("hooks_imported", map[string]any{"count": imported, "format": "txt"})
	return imported, nil
}

// templateFromExample derives a template from a full example post: the
// first line becomes the hook text, the pattern type is detected, tags are
// extracted from hashtags and topic keywords.
func templateFromExample(example string) *model.HookTemplate {
	pt := DetectPatternType(example)
	hookText := util.FirstLine(example, 100)
	return &model.HookTemplate{
		PatternType: pt,
		Name:        string(pt) + " hook",
		HookText:    hookText,
		ExampleText: example,
		Tags:        ExtractTags(example),
		IsActive:    true,
		Source:      "text_import",
		CreatedAt:   time.Now().UTC(),
	}
}

var hashtagRe = regexp.MustCompile(`#(\w+)`)

var topicKeywords = map[string][]string{
	"AI":         {"ai", "chatgpt", "claude", "openai", "llm"},
	"automation": {"automat", "n8n", "zapier", "workflow"},
	"coding":     {"code", "coding", "developer", "programming"},
	"business":   {"business", "client", "revenue", "profit"},
	"viral":      {"viral", "views", "million"},
}

// ExtractTags collects hashtags plus topic keywords found in text.
func ExtractTags(text string) []string {
	seen := map[string]bool{}
	var tags []string
	add := func(tag string) {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for tag, patterns := range topicKeywords {
		if util.ContainsAnyCaseInsensitive(text, patterns) {
			add(tag)
		}
	}
	return tags
}
