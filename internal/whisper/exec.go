package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/obiente/translate/recorder/internal/audio"
)

// ExecEngine shells out to a recognizer command. The command receives
// --audio <wav> plus the transcription options and prints
// {"text": "...", "language": "..."} on stdout.
type ExecEngine struct {
	args       []string
	sampleRate int
	mu         sync.Mutex
}

type execResult struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func NewExecEngine(command string, sampleRate int) (*ExecEngine, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &ExecEngine{args: args, sampleRate: sampleRate}, nil
}

func (e *ExecEngine) Name() string { return "exec" }
func (e *ExecEngine) Close() error { return nil }

func (e *ExecEngine) Transcribe(ctx context.Context, samples []float32, opts Options) (Result, error) {
	if len(samples) == 0 {
		return Result{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	wav, err := audio.EncodeWAV(samples, e.sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("encode wav: %w", err)
	}
	file, err := os.CreateTemp("", "recorder_stt_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	if _, err := file.Write(wav); err != nil {
		file.Close()
		return Result{}, fmt.Errorf("write temp wav: %w", err)
	}
	if err := file.Close(); err != nil {
		return Result{}, fmt.Errorf("close temp wav: %w", err)
	}

	args := append([]string{}, e.args[1:]...)
	args = append(args,
		"--audio", file.Name(),
		"--language", opts.LanguageCode(),
		"--task", string(opts.Task),
		"--chunk-length", strconv.Itoa(int(opts.ChunkLength.Seconds())),
		"--stride-length", strconv.Itoa(int(opts.StrideLength.Seconds())),
	)
	cmd := exec.CommandContext(ctx, e.args[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var out execResult
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Result{}, fmt.Errorf("decode stt response: %w", err)
	}
	return Result{Text: out.Text, Language: out.Language}, nil
}
