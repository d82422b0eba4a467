package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/obiente/translate/recorder/internal/audio"
)

type SidecarConfig struct {
	URL        string
	Timeout    time.Duration
	SampleRate int
}

// SidecarEngine talks to a faster-whisper style HTTP sidecar exposing
// POST /transcribe and GET /health.
type SidecarEngine struct {
	url        string
	client     *http.Client
	sampleRate int
}

func NewSidecarEngine(cfg SidecarConfig) *SidecarEngine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return &SidecarEngine{url: cfg.URL, client: &http.Client{Timeout: timeout}, sampleRate: rate}
}

func (e *SidecarEngine) Name() string { return "sidecar" }
func (e *SidecarEngine) Close() error { return nil }

// Available checks if the sidecar answers its health endpoint.
func (e *SidecarEngine) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type sidecarResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (e *SidecarEngine) Transcribe(ctx context.Context, samples []float32, opts Options) (Result, error) {
	if len(samples) == 0 {
		return Result{}, nil
	}
	wav, err := audio.EncodeWAV(samples, e.sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("encode wav: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return Result{}, fmt.Errorf("write audio data: %w", err)
	}
	fields := map[string]string{
		"task":          string(opts.Task),
		"chunk_length":  strconv.Itoa(int(opts.ChunkLength.Seconds())),
		"stride_length": strconv.Itoa(int(opts.StrideLength.Seconds())),
	}
	if lang := opts.LanguageCode(); lang != "auto" {
		fields["language"] = lang
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return Result{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+"/transcribe", &buf)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sidecar request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("sidecar error (status %d): %s", resp.StatusCode, string(body))
	}

	var sr sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Result{}, fmt.Errorf("decode sidecar response: %w", err)
	}
	res := Result{Text: sr.Text, Language: sr.Language}
	for _, s := range sr.Segments {
		res.Segments = append(res.Segments, Segment{
			Start: secondsToDuration(s.Start),
			End:   secondsToDuration(s.End),
			Text:  s.Text,
		})
	}
	return res, nil
}
