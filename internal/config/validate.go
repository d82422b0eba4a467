package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report fields by their yaml names, e.g. asr.sample_rate
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return strings.ToLower(fld.Name)
			}
			return name
		})
	})
	return validate
}

// Validate checks the struct tag rules first, then the rules that span
// sections.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fieldName(e)+": "+describe(e))
		}
		return errors.New(strings.Join(msgs, "; "))
	}

	switch c.ASR.Backend {
	case BackendWhisperCPP:
		if c.Whisper.ModelPath == "" {
			return errors.New("whisper model path is required")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("openai api key is required for the openai backend")
		}
	case BackendSidecar:
		if c.Sidecar.URL == "" {
			return errors.New("sidecar url is required for the sidecar backend")
		}
	case BackendExec:
		if strings.TrimSpace(c.Exec.Command) == "" {
			return errors.New("stt command is required for the exec backend")
		}
	}
	if 2*c.ASR.StrideLength >= c.ASR.ChunkLength {
		return fmt.Errorf("stride length %d must be below half the chunk length %d", c.ASR.StrideLength, c.ASR.ChunkLength)
	}
	return nil
}

// fieldName drops the root struct from the namespace.
func fieldName(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
