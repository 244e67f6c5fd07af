package container

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const idleWorkerInterval = time.Minute

// Browsers hands out a running browser endpoint, starting the container on
// demand and stopping it after a period without use.
type Browsers struct {
	mgr  Manager
	opts BrowserOptions

	mu       sync.Mutex
	current  Browser
	lastUsed time.Time
}

// NewBrowsers creates an on-demand browser pool of size one.
func NewBrowsers(mgr Manager, opts BrowserOptions) *Browsers {
	return &Browsers{mgr: mgr, opts: opts}
}

// Endpoint returns the browser endpoint, starting the container if needed.
func (b *Browsers) Endpoint(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastUsed = time.Now()
	if b.current.ContainerID != "" {
		running, err := b.mgr.IsRunning(ctx, b.current.ContainerID)
		if err == nil && running {
			return b.current.Endpoint, nil
		}
	}

	browser, err := b.mgr.EnsureBrowser(ctx, b.opts)
	if err != nil {
		return "", err
	}
	b.current = browser
	return browser.Endpoint, nil
}

// Token returns the browser API token.
func (b *Browsers) Token() string {
	return b.opts.Token
}

// reapIdle stops the container when it has not been used for ttl.
func (b *Browsers) reapIdle(ctx context.Context, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current.ContainerID == "" || time.Since(b.lastUsed) < ttl {
		return
	}
	slog.Info("Idle worker stopping browser container",
		"container_id", b.current.ContainerID,
		"idle", time.Since(b.lastUsed).Round(time.Second))
	if err := b.mgr.StopContainer(ctx, b.current.ContainerID); err != nil {
		slog.Error("Idle worker failed to stop container", "error", err, "container_id", b.current.ContainerID)
		return
	}
	b.current = Browser{}
}

// Shutdown stops the container if one is running.
func (b *Browsers) Shutdown(ctx context.Context) {
	b.reapIdle(ctx, 0)
}

// StartIdleWorker runs a background goroutine that stops the browser
// container after ttl without automation activity.
func StartIdleWorker(ctx context.Context, b *Browsers, ttl time.Duration) {
	ticker := time.NewTicker(idleWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle worker started", "interval", idleWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				b.reapIdle(ctx, ttl)
			case <-ctx.Done():
				slog.Info("Idle worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
