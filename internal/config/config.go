package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by ASR.Backend.
const (
	BackendWhisperCPP = "whispercpp"
	BackendOpenAI     = "openai"
	BackendSidecar    = "sidecar"
	BackendExec       = "exec"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	ASR         ASRConfig         `yaml:"asr"`
	Whisper     WhisperConfig     `yaml:"whisper"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Sidecar     SidecarConfig     `yaml:"sidecar"`
	Exec        ExecConfig        `yaml:"exec"`
	Decoder     DecoderConfig     `yaml:"decoder"`
	Capture     CaptureConfig     `yaml:"capture"`
	Translation TranslationConfig `yaml:"translation"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr" validate:"required"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" validate:"gte=0"` // seconds
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// ASRConfig holds the fixed parameters every transcription runs with.
type ASRConfig struct {
	Backend      string `yaml:"backend" validate:"oneof=whispercpp openai sidecar exec"`
	Language     string `yaml:"language"`
	Task         string `yaml:"task" validate:"oneof=transcribe translate"`
	ChunkLength  int    `yaml:"chunk_length" validate:"gt=0"`  // seconds
	StrideLength int    `yaml:"stride_length" validate:"gte=0"` // seconds
	SampleRate   int    `yaml:"sample_rate" validate:"gt=0"`
}

type WhisperConfig struct {
	ModelPath string `yaml:"model_path"`
	ModelURL  string `yaml:"model_url"`
	Threads   int    `yaml:"threads"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type SidecarConfig struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout" validate:"gte=0"` // seconds
}

type ExecConfig struct {
	Command string `yaml:"command"`
}

type DecoderConfig struct {
	Command  string `yaml:"command"`
	Channels int    `yaml:"channels" validate:"gt=0"`
}

type CaptureConfig struct {
	MaxAudioBytes int `yaml:"max_audio_bytes" validate:"gte=0"`
}

type TranslationConfig struct {
	Enabled bool     `yaml:"enabled"`
	BaseURL string   `yaml:"base_url" validate:"required_if=Enabled true,omitempty,url"`
	Timeout int      `yaml:"timeout" validate:"gte=0"` // seconds
	Targets []string `yaml:"targets"`
}

// TelemetryConfig selects the trace exporter: "none", "stdout" or "otlp".
type TelemetryConfig struct {
	Exporter    string  `yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string  `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
	ServiceName string  `yaml:"service_name"`
}

// BusConfig publishes finished transcripts to NATS when enabled.
type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers" validate:"required_if=Enabled true"`
	Subject        string   `yaml:"subject" validate:"required_if=Enabled true"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout" validate:"gte=0"` // milliseconds
}

// ChunkDuration returns ASR.ChunkLength as a duration.
func (c ASRConfig) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkLength) * time.Second
}

// StrideDuration returns ASR.StrideLength as a duration.
func (c ASRConfig) StrideDuration() time.Duration {
	return time.Duration(c.StrideLength) * time.Second
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: 10},
		Log:    LogConfig{Level: "info", Format: "json"},
		ASR: ASRConfig{
			Backend:      BackendWhisperCPP,
			Language:     "english",
			Task:         "transcribe",
			ChunkLength:  30,
			StrideLength: 5,
			SampleRate:   16000,
		},
		Whisper: WhisperConfig{
			ModelPath: "./models/ggml-small.en.bin",
			ModelURL:  "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin",
		},
		OpenAI:  OpenAIConfig{Model: "whisper-1"},
		Sidecar: SidecarConfig{URL: "http://localhost:8387", Timeout: 120},
		Decoder: DecoderConfig{
			Command:  "ffmpeg -hide_banner -loglevel error -i pipe:0 -f s16le -acodec pcm_s16le -ac 2 -ar 16000 pipe:1",
			Channels: 2,
		},
		Capture: CaptureConfig{MaxAudioBytes: 50 << 20},
		Translation: TranslationConfig{
			BaseURL: "https://libretranslate.obiente.cloud",
			Timeout: 8,
		},
		Bus: BusConfig{
			Servers:        []string{"nats://127.0.0.1:4222"},
			Subject:        "recorder.transcripts",
			ConnectTimeout: 2000,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "none",
			SampleRate:  1,
			ServiceName: "recorder",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// RECORDER_CONFIG and environment overrides, then validates it.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("RECORDER_CONFIG"); path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getenv("RECORDER_ADDR", c.Server.Addr)
	c.Server.ShutdownTimeout = getenvInt("RECORDER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("LOG_FORMAT", c.Log.Format)

	c.ASR.Backend = getenv("ASR_BACKEND", c.ASR.Backend)
	c.ASR.Language = getenv("ASR_LANGUAGE", c.ASR.Language)
	c.ASR.Task = getenv("ASR_TASK", c.ASR.Task)
	c.ASR.ChunkLength = getenvInt("ASR_CHUNK_LENGTH", c.ASR.ChunkLength)
	c.ASR.StrideLength = getenvInt("ASR_STRIDE_LENGTH", c.ASR.StrideLength)
	c.ASR.SampleRate = getenvInt("ASR_SAMPLE_RATE", c.ASR.SampleRate)

	c.Whisper.ModelPath = getenv("WHISPER_MODEL_PATH", c.Whisper.ModelPath)
	c.Whisper.ModelURL = getenv("WHISPER_MODEL_URL", c.Whisper.ModelURL)
	c.Whisper.Threads = getenvInt("WHISPER_THREADS", c.Whisper.Threads)

	c.OpenAI.APIKey = getenv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getenv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = getenv("OPENAI_MODEL", c.OpenAI.Model)

	c.Sidecar.URL = getenv("SIDECAR_URL", c.Sidecar.URL)
	c.Sidecar.Timeout = getenvInt("SIDECAR_TIMEOUT", c.Sidecar.Timeout)

	c.Exec.Command = getenv("STT_COMMAND", c.Exec.Command)

	c.Decoder.Command = getenv("DECODER_COMMAND", c.Decoder.Command)
	c.Decoder.Channels = getenvInt("DECODER_CHANNELS", c.Decoder.Channels)

	c.Capture.MaxAudioBytes = getenvInt("CAPTURE_MAX_AUDIO_BYTES", c.Capture.MaxAudioBytes)

	c.Translation.Enabled = getenvBool("TRANSLATION_ENABLED", c.Translation.Enabled)
	c.Translation.BaseURL = getenv("TRANSLATION_BASE_URL", c.Translation.BaseURL)
	c.Translation.Timeout = getenvInt("TRANSLATION_TIMEOUT", c.Translation.Timeout)
	c.Translation.Targets = getenvList("TRANSLATION_TARGETS", c.Translation.Targets)

	c.Bus.Enabled = getenvBool("BUS_ENABLED", c.Bus.Enabled)
	c.Bus.Servers = getenvList("BUS_SERVERS", c.Bus.Servers)
	c.Bus.Subject = getenv("BUS_SUBJECT", c.Bus.Subject)
	c.Bus.Token = getenv("BUS_TOKEN", c.Bus.Token)
	c.Bus.ConnectTimeout = getenvInt("BUS_CONNECT_TIMEOUT", c.Bus.ConnectTimeout)

	c.Telemetry.Exporter = getenv("OTEL_TRACES_EXPORTER", c.Telemetry.Exporter)
	c.Telemetry.Endpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.Insecure = getenvBool("OTEL_EXPORTER_OTLP_INSECURE", c.Telemetry.Insecure)
	c.Telemetry.SampleRate = getenvFloat("OTEL_TRACES_SAMPLE_RATE", c.Telemetry.SampleRate)
	c.Telemetry.ServiceName = getenv("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
}
