// Package router dispatches tool invocations and resource reads to the
// session that owns the capability, translating transport failures into the
// errors the conversation layer folds back to the model.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/medichat/pkg/metricskey"
	"github.com/effective-security/medichat/registry"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/medichat", "router")

var (
	// ErrUnknownTool is returned for a tool name absent from the registry.
	// No provider is contacted in that case.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolTimeout is returned when a provider does not answer an
	// invocation within the deadline. The session stays usable.
	ErrToolTimeout = errors.New("tool call timed out")
	// ErrToolUnavailable is returned when the owning session is gone.
	ErrToolUnavailable = errors.New("tool unavailable")
	// ErrResourceUnavailable is returned when a matched resource cannot be
	// read even after a retry.
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// SessionSource looks up live sessions by ID. The hub implements it.
type SessionSource interface {
	Session(id string) (*mcp.Session, bool)
}

// Router routes capability lookups through the registry to live sessions.
type Router struct {
	registry *registry.Registry
	sessions SessionSource
}

// New creates a router over an immutable registry and a session source.
func New(reg *registry.Registry, sessions SessionSource) *Router {
	return &Router{
		registry: reg,
		sessions: sessions,
	}
}

// Invoke runs a single tool call. Unknown names fail before any provider is
// contacted. Provider-side timeouts surface as ErrToolTimeout and a dead
// session as ErrToolUnavailable.
func (r *Router) Invoke(ctx context.Context, name string, args json.RawMessage) (mcp.CallToolResult, error) {
	td, ok := r.registry.Tool(name)
	if !ok {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		return mcp.CallToolResult{}, errors.WithMessagef(ErrUnknownTool, "tool=%s", name)
	}

	sess, ok := r.sessions.Session(td.SessionID)
	if !ok || sess.State() != mcp.StateReady {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		return mcp.CallToolResult{}, errors.WithMessagef(ErrToolUnavailable, "tool=%s, session=%s", name, td.SessionID)
	}

	started := time.Now()
	res, err := sess.CallTool(ctx, name, args)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		switch {
		case errors.Is(err, mcp.ErrRequestTimeout):
			return mcp.CallToolResult{}, errors.WithSecondaryError(
				errors.WithMessagef(ErrToolTimeout, "tool=%s, session=%s", name, td.SessionID), err)
		case errors.Is(err, mcp.ErrSessionLost), errors.Is(err, mcp.ErrSessionClosed):
			return mcp.CallToolResult{}, errors.WithSecondaryError(
				errors.WithMessagef(ErrToolUnavailable, "tool=%s, session=%s", name, td.SessionID), err)
		}
		return mcp.CallToolResult{}, errors.WithMessagef(err, "tool call failed: %s", name)
	}

	metricskey.PerfToolCall.MeasureSince(started, name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", name,
		"session", td.SessionID,
		"is_error", res.IsError,
		"elapsed", time.Since(started).String(),
	)
	return res, nil
}

// ReadResource resolves a URI against the registry and reads it from the
// owning session, retrying once on a transient failure. A session that died
// is not retried.
func (r *Router) ReadResource(ctx context.Context, uri string) (mcp.ReadResourceResult, error) {
	rd, err := r.registry.Resolve(uri)
	if err != nil {
		return mcp.ReadResourceResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		sess, ok := r.sessions.Session(rd.SessionID)
		if !ok || sess.State() != mcp.StateReady {
			return mcp.ReadResourceResult{}, errors.WithMessagef(ErrResourceUnavailable, "uri=%s, session=%s", uri, rd.SessionID)
		}

		res, err := sess.ReadResource(ctx, uri)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, mcp.ErrSessionLost) || errors.Is(err, mcp.ErrSessionClosed) || ctx.Err() != nil {
			break
		}
		logger.ContextKV(ctx, xlog.DEBUG, "uri", uri, "attempt", attempt+1, "err", err.Error())
	}
	return mcp.ReadResourceResult{}, errors.WithSecondaryError(
		errors.WithMessagef(ErrResourceUnavailable, "uri=%s, session=%s", uri, rd.SessionID), lastErr)
}
