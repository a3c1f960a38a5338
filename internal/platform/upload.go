package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"quill/internal/errs"
)

// UploadMedia pushes a local image or video to the media endpoint and
// returns its handle. altText, when non-empty, is attached via the
// metadata endpoint so screen readers can describe the media.
func (c *Client) UploadMedia(ctx context.Context, path, altText string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/media/upload.json", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.oauth1Sign(req, nil)
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return "", &errs.ExternalCallError{Op: "media_upload", Transient: true, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", statusError("media_upload", resp.StatusCode)
	}
	var raw struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", &errs.ExternalCallError{Op: "media_upload", Transient: true, Err: err}
	}
	if altText != "" {
		if err := c.setMediaAltText(ctx, raw.MediaIDString, altText); err != nil {
			return "", err
		}
	}
	return raw.MediaIDString, nil
}

func (c *Client) setMediaAltText(ctx context.Context, mediaID, altText string) error {
	body := map[string]any{
		"media_id": mediaID,
		"alt_text": map[string]string{"text": altText},
	}
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/media/metadata/create.json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.oauth1Sign(req, nil)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return &errs.ExternalCallError{Op: "media_upload", Transient: true, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError("media_upload", resp.StatusCode)
	}
	return nil
}
