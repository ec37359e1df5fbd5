// Package hub owns the lifecycle of every configured tool-provider session:
// it launches the provider processes, performs the handshakes, discovers and
// merges their capabilities into a single registry, and tears everything down
// deterministically on shutdown.
package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/medichat/mcp/stdio"
	"github.com/effective-security/medichat/pkg/metricskey"
	"github.com/effective-security/medichat/registry"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/medichat", "hub")

// Dialer produces a transport for one configured provider. The default spawns
// the provider as a child process over stdio.
type Dialer func(ctx context.Context, sc *ServerConfig) (mcp.Transport, error)

// Option configures a Hub.
type Option func(*Hub)

// WithClientInfo sets the client identification sent in every handshake.
func WithClientInfo(info mcp.Info) Option {
	return func(h *Hub) {
		h.clientInfo = info
	}
}

// WithSessionOptions appends options applied to every dialed session.
func WithSessionOptions(opts ...mcp.SessionOption) Option {
	return func(h *Hub) {
		h.sessionOpts = append(h.sessionOpts, opts...)
	}
}

// WithDialer replaces the transport factory, mainly to run providers
// in-process in tests.
func WithDialer(d Dialer) Option {
	return func(h *Hub) {
		h.dial = d
	}
}

type sessionEntry struct {
	sess *mcp.Session
	dead chan struct{}
}

// Hub launches the configured providers and owns their sessions. After a
// successful Open the registry is immutable and the Hub serves as the
// session source for the router.
type Hub struct {
	cfg         *Config
	clientInfo  mcp.Info
	sessionOpts []mcp.SessionOption
	dial        Dialer

	closing atomic.Bool

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	order    []string
	registry *registry.Registry
}

// New creates a Hub from configuration. No provider is started until Open.
func New(cfg *Config, opts ...Option) *Hub {
	h := &Hub{
		cfg:        cfg,
		clientInfo: mcp.Info{Name: "medichat", Version: "1.0.0"},
		sessions:   make(map[string]*sessionEntry),
	}
	h.dial = func(ctx context.Context, sc *ServerConfig) (mcp.Transport, error) {
		return stdio.NewCommand(sc.Command, sc.Args, sc.Env), nil
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open starts every configured provider, handshakes, discovers capabilities
// and merges them into one registry. Any failure, including a duplicate
// capability between providers, aborts the whole startup and tears down the
// sessions already opened.
func (h *Hub) Open(ctx context.Context) error {
	reg := registry.New()

	for _, sc := range h.cfg.Servers {
		started := time.Now()

		tr, err := h.dial(ctx, sc)
		if err != nil {
			h.teardown(ctx)
			return errors.WithMessagef(err, "failed to create transport for %s", sc.ID)
		}

		id := sc.ID
		entry := &sessionEntry{dead: make(chan struct{})}
		sess, err := mcp.Dial(ctx, id, tr, h.clientInfo,
			append(h.sessionOpts, mcp.WithCloseHook(func(sessionID string) {
				close(entry.dead)
				h.onSessionDead(sessionID)
			}))...)
		if err != nil {
			h.teardown(ctx)
			return errors.WithMessagef(err, "failed to start provider %s", id)
		}
		entry.sess = sess

		h.mu.Lock()
		h.sessions[id] = entry
		h.order = append(h.order, id)
		h.mu.Unlock()

		cat, err := registry.Discover(ctx, sess)
		if err != nil {
			h.teardown(ctx)
			return errors.WithMessagef(err, "failed to discover capabilities of %s", id)
		}
		if err := reg.Merge(cat); err != nil {
			h.teardown(ctx)
			return err
		}

		metricskey.PerfProviderStartup.MeasureSince(started, id)
		metricskey.StatsSessionsStarted.IncrCounter(1, id)
		logger.KV(xlog.INFO,
			"server", id,
			"status", "started",
			"tools", len(cat.Tools),
			"resources", len(cat.Resources),
			"elapsed", time.Since(started).String(),
		)
	}

	h.mu.Lock()
	h.registry = reg
	h.mu.Unlock()
	return nil
}

// Registry returns the merged capability registry. Valid after Open.
func (h *Hub) Registry() *registry.Registry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry
}

// Session implements router.SessionSource.
func (h *Hub) Session(id string) (*mcp.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	return entry.sess, true
}

// HistoryMode returns the configured chat history mode.
func (h *Hub) HistoryMode() string {
	if h.cfg.History == HistoryPersist {
		return HistoryPersist
	}
	return HistoryReset
}

// Shutdown closes every session in reverse startup order and waits for each
// provider to go away, bounded by ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.closing.Store(true)

	h.mu.Lock()
	entries := make([]*sessionEntry, 0, len(h.order))
	for i := len(h.order) - 1; i >= 0; i-- {
		if entry, ok := h.sessions[h.order[i]]; ok {
			entries = append(entries, entry)
		}
	}
	h.mu.Unlock()

	var errs error
	for _, entry := range entries {
		if err := entry.sess.Close(); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
		select {
		case <-entry.dead:
		case <-ctx.Done():
			errs = errors.CombineErrors(errs, errors.WithMessagef(ctx.Err(), "session %s did not stop", entry.sess.ID()))
		}
	}
	return errs
}

func (h *Hub) onSessionDead(id string) {
	if h.closing.Load() {
		return
	}
	metricskey.StatsSessionsLost.IncrCounter(1, id)
	logger.KV(xlog.WARNING, "server", id, "status", "session_lost")
}

// teardown closes sessions opened so far during a failed Open.
func (h *Hub) teardown(ctx context.Context) {
	h.closing.Store(true)
	_ = h.Shutdown(ctx)
	h.closing.Store(false)
}
