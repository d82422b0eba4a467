package whisper

import "context"

// CPPConfig configures the local whisper.cpp engine.
type CPPConfig struct {
	ModelPath string
	Threads   int
}

// OpenCPP returns an OpenFunc that fetches the model file with fetch (when
// set) and then loads it. Without whisper.cpp support nothing is fetched.
func OpenCPP(cfg CPPConfig, fetch func(ctx context.Context, report func(Progress)) error) OpenFunc {
	return func(ctx context.Context, report func(Progress)) (Engine, error) {
		if !cppCompiled {
			return nil, ErrNotCompiled
		}
		if fetch != nil {
			if err := fetch(ctx, report); err != nil {
				return nil, err
			}
		}
		report(Progress{Status: StatusLoading, File: cfg.ModelPath})
		return NewCPPEngine(cfg)
	}
}
