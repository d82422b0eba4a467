package capture

import (
	"context"
	"sync"
)

// ClientDevice is the input of a remote client that captures audio itself and
// forwards chunks. Granted reflects the client's permission answer.
type ClientDevice struct {
	Granted bool
	// OnRelease runs once when the stream is released, e.g. to tell the
	// client to stop its tracks.
	OnRelease func() error
}

func (d ClientDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.Granted {
		return nil, ErrPermissionDenied
	}
	return &releaseOnce{fn: d.OnRelease}, nil
}

// NopDevice always grants a stream that needs no cleanup.
type NopDevice struct{}

func (NopDevice) Open(context.Context) (Stream, error) { return &releaseOnce{}, nil }

type releaseOnce struct {
	once sync.Once
	fn   func() error
}

func (r *releaseOnce) Release() error {
	var err error
	r.once.Do(func() {
		if r.fn != nil {
			err = r.fn()
		}
	})
	return err
}
