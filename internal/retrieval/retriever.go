// Package retrieval answers knowledge questions from the fast vector index
// or the deep reasoning agent.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// UnavailableMessage is returned when a knowledge source could not be initialized.
const UnavailableMessage = "The knowledge base is not available right now. Let's keep talking and I'll share what I know."

// ErrUnavailable marks a knowledge source that failed to initialize.
var ErrUnavailable = errors.New("knowledge source unavailable")

// Retriever answers a free-text query.
type Retriever interface {
	Query(ctx context.Context, query string) (string, error)
}

// Factory builds a retriever. It is called at most once per Lazy.
type Factory func(ctx context.Context) (Retriever, error)

// Status is the initialization state of a Lazy retriever.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "pending"
	}
}

// Lazy builds its retriever on first use and caches the outcome.
type Lazy struct {
	name    string
	factory Factory
	timeout time.Duration
	logger  *slog.Logger

	once   sync.Once
	mu     sync.RWMutex
	status Status
	r      Retriever
	err    error
}

// NewLazy wraps factory. timeout bounds construction and is independent of
// the first caller's context.
func NewLazy(name string, factory Factory, timeout time.Duration, logger *slog.Logger) *Lazy {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Lazy{name: name, factory: factory, timeout: timeout, logger: logger}
}

// Init builds the retriever if it has not been built yet and returns its status.
func (l *Lazy) Init(ctx context.Context) Status {
	l.once.Do(func() {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		start := time.Now()
		r, err := l.factory(buildCtx)
		if err == nil && r == nil {
			err = ErrUnavailable
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if err != nil {
			l.status, l.err = StatusUnavailable, err
			l.logger.Error("knowledge source unavailable", "source", l.name, "error", err)
			return
		}
		l.status, l.r = StatusReady, r
		l.logger.Info("knowledge source ready", "source", l.name, "duration", time.Since(start))
	})
	return l.Status()
}

// Status reports the cached initialization outcome without triggering it.
func (l *Lazy) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Err returns the initialization error, if any.
func (l *Lazy) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Query implements Retriever. An unavailable source answers with
// UnavailableMessage; errors from a ready source are returned unchanged.
func (l *Lazy) Query(ctx context.Context, query string) (string, error) {
	if l.Init(ctx) != StatusReady {
		return UnavailableMessage, nil
	}
	l.mu.RLock()
	r := l.r
	l.mu.RUnlock()
	return r.Query(ctx, query)
}
