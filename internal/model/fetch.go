// Package model downloads ggml model files on first use.
package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/recorder/internal/whisper"
)

// reportEvery throttles download progress reports.
const reportEvery = 1 << 20

type Fetcher struct {
	client *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Fetcher{client: client}
}

// Func binds url and path into a whisper.FetchFunc.
func (f *Fetcher) Func(url, path string) whisper.FetchFunc {
	return func(ctx context.Context, report func(whisper.Progress)) error {
		return f.Ensure(ctx, url, path, report)
	}
}

// Ensure downloads url to path unless path already exists. The file is
// written next to path and renamed into place once complete.
func (f *Fetcher) Ensure(ctx context.Context, url, path string, report func(whisper.Progress)) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat model: %w", err)
	}
	if url == "" {
		return fmt.Errorf("model %s not found and no download url configured", path)
	}
	if report == nil {
		report = func(whisper.Progress) {}
	}
	name := filepath.Base(path)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download model: http %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), name+".*.part")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	log.Info().Str("url", url).Str("path", path).Int64("bytes", resp.ContentLength).Msg("model: downloading")
	pw := &progressWriter{file: name, total: resp.ContentLength, report: report}
	report(whisper.Downloading(name, 0, resp.ContentLength))
	if _, err := io.Copy(io.MultiWriter(tmp, pw), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model file: %w", err)
	}
	report(whisper.Downloading(name, pw.loaded, pw.loaded))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	log.Info().Str("path", path).Int64("bytes", pw.loaded).Msg("model: download complete")
	return nil
}

type progressWriter struct {
	file         string
	total        int64
	loaded       int64
	lastReported int64
	report       func(whisper.Progress)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.loaded += int64(len(b))
	if p.loaded-p.lastReported >= reportEvery {
		p.lastReported = p.loaded
		p.report(whisper.Downloading(p.file, p.loaded, p.total))
	}
	return len(b), nil
}
