package core

import "context"

// ReadOwnership is the exclusive right to read from the link.
// The Reader Loop takes it for one tick at a time; a diagnostic holds it for its whole run,
// so the two never consume each other's lines.
type ReadOwnership struct {
	token chan struct{}
}

// NewReadOwnership returns a free token.
func NewReadOwnership() *ReadOwnership {
	return &ReadOwnership{token: make(chan struct{}, 1)}
}

// TryAcquire takes the token if it is free.
func (o *ReadOwnership) TryAcquire() bool {
	select {
	case o.token <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire waits for the token or ctx.
func (o *ReadOwnership) Acquire(ctx context.Context) error {
	select {
	case o.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns the token. It must only be called by the holder.
func (o *ReadOwnership) Release() {
	<-o.token
}

// Held reports whether someone holds the token.
func (o *ReadOwnership) Held() bool {
	return len(o.token) == 1
}
