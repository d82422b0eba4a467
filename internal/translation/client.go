package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Result is one target language translation.
type Result struct {
	Primary          string   `json:"primary"`
	Alternatives     []string `json:"alternatives,omitempty"`
	DetectedLanguage string   `json:"detectedLanguage,omitempty"`
}

type Client struct {
	base string
	http *http.Client
}

func New(base string, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 8
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

// Translate requests translations for text into targets.
// It calls the LibreTranslate compatible endpoint once per target with
// payload (q, source, target, format) and returns results keyed by target.
func (c *Client) Translate(ctx context.Context, text string, source string, targets []string) (map[string]Result, error) {
	out := make(map[string]Result, len(targets))
	if c == nil || c.base == "" || len(targets) == 0 || strings.TrimSpace(text) == "" {
		return out, nil
	}

	src := strings.TrimSpace(source)
	if src == "" {
		src = "auto"
	}

	for _, tgt := range targets {
		r, err := c.translateOne(ctx, text, src, tgt)
		if err != nil {
			return nil, err
		}
		out[tgt] = r
	}
	return out, nil
}

func (c *Client) translateOne(ctx context.Context, text, src, tgt string) (Result, error) {
	payload := map[string]any{
		"q":      text,
		"source": src,
		"target": tgt,
		"format": "text",
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/translate", bytes.NewReader(b))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("translation http %d for target %s", resp.StatusCode, tgt)
	}

	var lr struct {
		TranslatedText   string          `json:"translatedText"`
		Alternatives     []string        `json:"alternatives"`
		DetectedLanguage json.RawMessage `json:"detectedLanguage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return Result{}, fmt.Errorf("decode translation: %w", err)
	}

	r := Result{Primary: strings.TrimSpace(lr.TranslatedText)}
	for _, a := range lr.Alternatives {
		if s := strings.TrimSpace(a); s != "" {
			r.Alternatives = append(r.Alternatives, s)
		}
	}
	r.DetectedLanguage = detectedLanguage(lr.DetectedLanguage)
	return r, nil
}

// detectedLanguage accepts both a bare code and LibreTranslate's
// {"language": "en", "confidence": 90} object.
func detectedLanguage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var code string
	if err := json.Unmarshal(raw, &code); err == nil {
		return code
	}
	var obj struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Language
	}
	return ""
}
