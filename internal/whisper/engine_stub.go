//go:build !whisper_cpp

package whisper

// cppCompiled reports whether the whisper.cpp bindings are linked in.
const cppCompiled = false

// NewCPPEngine fails without the whisper_cpp build tag so the loader reports
// the backend as unavailable instead of ready.
func NewCPPEngine(cfg CPPConfig) (Engine, error) { return nil, ErrNotCompiled }
