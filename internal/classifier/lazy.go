package classifier

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Loader constructs a Classifier. It is invoked at most once by Lazy.
type Loader func() (Classifier, error)

// Lazy defers model loading to the first prediction and reuses the loaded
// model afterwards. A failed load is remembered and reported on every call.
type Lazy struct {
	name string
	load Loader

	mu    sync.Mutex
	ready atomic.Bool
	inner Classifier
	err   error
}

// NewLazy wraps load. name is used in error messages.
func NewLazy(name string, load Loader) *Lazy {
	return &Lazy{name: name, load: load}
}

// Load forces initialisation and returns the load error, if any.
func (l *Lazy) Load() error {
	_, err := l.get()
	return err
}

// State reports whether a load attempt has finished and its error.
func (l *Lazy) State() (done bool, err error) {
	if !l.ready.Load() {
		return false, nil
	}
	return true, l.err
}

func (l *Lazy) get() (Classifier, error) {
	if l.ready.Load() {
		return l.inner, l.err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready.Load() {
		return l.inner, l.err
	}

	c, err := l.load()
	if err != nil {
		l.err = fmt.Errorf("%w: %s: %v", ErrNotLoaded, l.name, err)
	} else if c == nil {
		l.err = fmt.Errorf("%w: %s: loader returned nil", ErrNotLoaded, l.name)
	}
	l.inner = c
	l.ready.Store(true)
	return l.inner, l.err
}

// Predict loads the model if needed and delegates to it.
func (l *Lazy) Predict(ctx context.Context, text string) (Prediction, error) {
	c, err := l.get()
	if err != nil {
		return Prediction{}, err
	}
	return c.Predict(ctx, text)
}

// Close releases the loaded model when it holds native resources.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
