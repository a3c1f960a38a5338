// Package hook detects attention-grabbing patterns in post text, scores
// hook strength, and adapts stored hook templates onto new content.
package hook

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"quill/internal/errs"
	"quill/internal/metrics"
	"quill/internal/model"
	"quill/internal/util"
)

// Repository is the external store for templates and usages.
type Repository interface {
	InsertTemplate(ctx context.Context, t *model.HookTemplate) (int64, error)
	GetTemplate(ctx context.Context, id int64) (*model.HookTemplate, error)
	ListTemplates(ctx context.Context, f TemplateFilter) ([]model.HookTemplate, error)
	InsertUsage(ctx context.Context, u *model.HookUsage) (int64, error)
	GetUsage(ctx context.Context, id int64) (*model.HookUsage, error)
	ListUsagesByHook(ctx context.Context, hookID int64) ([]model.HookUsage, error)
	UpdateUsage(ctx context.Context, u *model.HookUsage) error
	UpdateTemplateStats(ctx context.Context, id int64, avgEngagementRate, successRate float64) error
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	PatternType model.PatternType // empty: all types
	MinViews    int
	Tags        []string // non-empty: any-tag intersection
	ActiveOnly  bool
	// OrderByEngagement sorts by avg engagement rate descending.
	OrderByEngagement bool
	Limit             int
}

// Engine is pure and reentrant; concurrency control is the repository's concern.
type Engine struct {
	repo Repository
	// pickIntro selects a shock opener from a pool. Injectable so tests
	// can pin the choice without changing the contract.
	pickIntro func(pool []string) string
}

// NewEngine builds an engine over repo with the default random intro picker.
func NewEngine(repo Repository) *Engine {
	return &Engine{
		repo:      repo,
		pickIntro: func(pool []string) string { return pool[rand.Intn(len(pool))] },
	}
}

// SetIntroPicker overrides shock intro selection. Tests only.
func (e *Engine) SetIntroPicker(f func(pool []string) string) { e.pickIntro = f }

var (
	giveawayPhrases = []string{"comment", "i'll send", "i'll dm", "repost"}
	shockPhrases    = []string{"holy", "sh*t", "insane", "crazy", "wtf"}
	authorityPhrases = []string{"i've cracked", "i've built", "i spent"}
	insiderPhrases   = []string{"asked me not to", "secretly", "nobody talks"}
	urgencyPhrases   = []string{"free for", "next 24", "limited time"}

	resultsRe = regexp.MustCompile(`\$[\d,]+[kK]?|\d+[kK]\s*(monthly|per|/)`)
	listRe    = regexp.MustCompile(`\d+\s+\w+\s+that`)
)

// DetectPatternType classifies text with an ordered, first-match-wins cascade.
// The rule order is a priority cascade, not independent scoring.
func DetectPatternType(text string) model.PatternType {
	lower := strings.ToLower(text)
	switch {
	case util.ContainsAnyCaseInsensitive(lower, giveawayPhrases):
		return model.PatternValueGiveaway
	case util.ContainsAnyCaseInsensitive(lower, shockPhrases):
		return model.PatternShock
	case resultsRe.MatchString(text):
		return model.PatternResults
	case util.ContainsAnyCaseInsensitive(lower, authorityPhrases):
		return model.PatternAuthority
	case util.ContainsAnyCaseInsensitive(lower, insiderPhrases):
		return model.PatternInsider
	case listRe.MatchString(lower):
		return model.PatternList
	case util.ContainsAnyCaseInsensitive(lower, urgencyPhrases):
		return model.PatternTimeSensitive
	case hasInterrogativePrefix(lower):
		return model.PatternQuestion
	default:
		return model.PatternCustom
	}
}

func hasInterrogativePrefix(lower string) bool {
	for _, w := range []string{"why", "how", "what", "when"} {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	return false
}

var (
	capsRunRe = regexp.MustCompile(`[A-Z]{3,}`)
	digitsRe  = regexp.MustCompile(`\d+`)
)

// AttentionElements flags the attention-grabbing features of a first line.
type AttentionElements struct {
	Caps        bool
	Emoji       bool
	Numbers     bool
	Question    bool
	Exclamation bool
}

// hasEmoji reports whether s contains a character in the common emoji ranges.
func hasEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F600 && r <= 0x1F64F, // emoticons
			r >= 0x1F300 && r <= 0x1F5FF, // symbols & pictographs
			r >= 0x1F680 && r <= 0x1F6FF, // transport
			r >= 0x2702 && r <= 0x27BF: // dingbats
			return true
		}
	}
	return false
}

// AnalyzeHookStrength scores the opening line of text on a 0-10 scale.
func AnalyzeHookStrength(text string) (float64, AttentionElements) {
	first := util.FirstLine(text, 50)
	el := AttentionElements{
		Caps:        capsRunRe.MatchString(first),
		Emoji:       hasEmoji(first),
		Numbers:     digitsRe.MatchString(first),
		Question:    strings.HasSuffix(strings.TrimSpace(first), "?"),
		Exclamation: strings.Contains(first, "!"),
	}
	score := 0.0
	if el.Caps {
		score += 2
	}
	if el.Emoji {
		score += 1
	}
	if el.Numbers {
		score += 2
	}
	if el.Question {
		score += 1.5
	}
	if el.Exclamation {
		score += 1
	}
	if score > 10 {
		score = 10
	}
	return score, el
}

// SuggestedHook is a compact template reference for analysis output.
type SuggestedHook struct {
	ID          int64
	PatternType model.PatternType
	Example     string
}

// Analysis is the result of analyzing draft text for hook patterns.
type Analysis struct {
	DetectedPattern   model.PatternType
	HasHook           bool
	HookStrength      float64
	AttentionElements AttentionElements
	Improvements      []string
	Suggestions       []SuggestedHook
}

/// AnalyzeText inspects draft content: pattern class, hook strength, and, for
// weak openings, improvement hints plus up to two template suggestions.
func (e *Engine) AnalyzeText(ctx context.Context, content string) (Analysis, error) {
	strength, elements := AnalyzeHookStrength(content)
	a := Analysis{
		DetectedPattern:   DetectPatternType(content),
		HasHook:           strength >= 3,
		HookStrength:      strength,
		AttentionElements: elements,
	}
	if strength < 5 {
		a.Improvements = []string{
			"Consider starting with a stronger hook",
			"Add numbers or specific results",
			"Use attention-grabbing punctuation or emojis",
		}
	}
	if !a.HasHook {
		topic := util.FirstLine(content, 50)
		hooks, err := e.SuggestHooks(ctx, topic, "", 2)
		if err != nil {
			return a, err
		}
		for _, h := range hooks {
			a.Suggestions = append(a.Suggestions, SuggestedHook{ID: h.ID, PatternType: h.PatternType, Example: h.HookText})
		}
	}
	return a, nil
}

// SuggestHooks ranks active templates for a topic. With a topic, templates
// score +2 per matching tag, +1 per matching use case, +0.5 for an example
// match; only positive scores are kept, ordered descending with insertion
// order as tie-break. Without a topic, the best-engaging templates win.
func (e *Engine) SuggestHooks(ctx context.Context, topic string, patternType model.PatternType, count int) ([]model.HookTemplate, error) {
	if count <= 0 {
		return nil, nil
	}
	if topic == "" {
		return e.repo.ListTemplates(ctx, TemplateFilter{
			PatternType:       patternType,
			ActiveOnly:        true,
			OrderByEngagement: true,
			Limit:             count,
		})
	}
	all, err := e.repo.ListTemplates(ctx, TemplateFilter{PatternType: patternType, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	topicLower := strings.ToLower(topic)
	type scored struct {
		score float64
		tmpl  model.HookTemplate
	}
	var ranked []scored
	for _, h := range all {
		score := 0.0
		for _, tag := range h.Tags {
			if strings.Contains(strings.ToLower(tag), topicLower) {
				score += 2
			}
		}
		for _, uc := range h.UseCases {
			if strings.Contains(strings.ToLower(uc), topicLower) {
				score += 1
			}
		}
		if h.ExampleText != "" && strings.Contains(strings.ToLower(h.ExampleText), topicLower) {
			score += 0.5
		}
		if score > 0 {
			ranked = append(ranked, scored{score: score, tmpl: h})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > count {
		ranked = ranked[:count]
	}
	out := make([]model.HookTemplate, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.tmpl)
	}
	return out, nil
}

// ListHooks lists templates through the repository filter.
func (e *Engine) ListHooks(ctx context.Context, f TemplateFilter) ([]model.HookTemplate, error) {
	f.ActiveOnly = true
	if f.Limit == 0 {
		f.Limit = 20
	}
	if len(f.Tags) == 0 && !f.OrderByEngagement {
		f.OrderByEngagement = true
	}
	return e.repo.ListTemplates(ctx, f)
}

// GetHook fetches one template.
func (e *Engine) GetHook(ctx context.Context, id int64) (*model.HookTemplate, error) {
	return e.repo.GetTemplate(ctx, id)
}

var shockIntros = []string{
	"HOLY SH*T..🤯",
	"This is INSANE...",
	"I can't believe this...",
	"Mind = BLOWN 🤯",
}

// ShockIntros returns the fixed pool of shock openers. The selected opener
// is always a member of this pool; which member is picked is not part of
// the contract.
func ShockIntros() []string {
	out := make([]string, len(shockIntros))
	copy(out, shockIntros)
	return out
}

// Adapt applies the template identified by hookID onto content. Recognized
// context keys depend on the pattern type; unknown keys are ignored.
// Adaptation never truncates: callers re-check the length limit afterward.
func (e *Engine) Adapt(ctx context.Context, hookID int64, content string, vars map[string]string) (string, error) {
	h, err := e.repo.GetTemplate(ctx, hookID)
	if err != nil {
		return "", err
	}
	if h == nil {
		return "", &errs.NotFoundError{Kind: "hook", ID: fmt.Sprint(hookID)}
	}
	metrics.IncAdaptation(string(h.PatternType))
	get := func(key, def string) string {
		if v, ok := vars[key]; ok && v != "" {
			return v
		}
		return def
	}
	switch h.PatternType {
	case model.PatternValueGiveaway:
		action := get("action", "comment")
		keyword := get("keyword", "INFO")
		value := get("value", "the guide")
		var b strings.Builder
		b.WriteString(content)
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "Want %s?\n\n", value)
		fmt.Fprintf(&b, "👉 RT + Like & %s %q and I'll DM it to you\n\n", util.Capitalize(action), keyword)
		b.WriteString("(Must be following)")
		return b.String(), nil
	case model.PatternShock:
		intro := get("intro", "")
		if intro == "" {
			intro = e.pickIntro(shockIntros)
		}
		return intro + "\n\n" + content, nil
	case model.PatternResults:
		result := get("result", "$10K monthly")
		timeframe := get("timeframe", "in 30 days")
		return fmt.Sprintf("How I achieved %s %s:\n\n%s", result, timeframe, content), nil
	case model.PatternList:
		number := get("number", "10")
		itemType := get("item_type", "tips")
		benefit := get("benefit", "you need to know")
		return fmt.Sprintf("%s %s %s:\n\n%s", number, itemType, benefit, content), nil
	default:
		return h.HookText + "\n\n" + content, nil
	}
}
