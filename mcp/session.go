package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/medichat", "mcp")

// Default bounds for the handshake and for a single provider call.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultCallTimeout      = 30 * time.Second
)

// State is the liveness state of a session.
type State int32

// Session liveness states.
const (
	StateStarting State = iota
	StateReady
	StateClosing
	StateDead
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateDead:
		return "dead"
	}
	return "unknown"
}

// SessionOption configures a Session created by Dial.
type SessionOption func(*Session)

// WithHandshakeTimeout bounds the initialization handshake.
func WithHandshakeTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.handshakeTimeout = d
	}
}

// WithCallTimeout bounds every provider call issued on the session.
func WithCallTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.callTimeout = d
	}
}

// WithCloseHook registers a callback invoked exactly once when the session
// transitions to Dead, whether by Close or by transport death.
func WithCloseHook(hook func(sessionID string)) SessionOption {
	return func(s *Session) {
		s.closeHook = hook
	}
}

type responseEnvelope struct {
	msg *Message
	err error
}

// Session is one live connection to a tool-provider process. It owns the
// transport, performs the initialization handshake and correlates responses
// with requests by message ID. All methods are safe for concurrent use.
type Session struct {
	id        string
	transport Transport
	info      Info

	serverInfo Info
	caps       ServerCapabilities

	handshakeTimeout time.Duration
	callTimeout      time.Duration
	closeHook        func(sessionID string)

	state   atomic.Int32
	mu      sync.Mutex
	pending map[MustString]chan responseEnvelope
	started bool
}

// Dial connects a new session over the given transport and performs the
// initialization handshake. The transport is closed on any handshake failure,
// so a non-nil error never leaks a provider process.
func Dial(ctx context.Context, id string, tr Transport, clientInfo Info, opts ...SessionOption) (*Session, error) {
	s := &Session{
		id:               id,
		transport:        tr,
		info:             clientInfo,
		handshakeTimeout: DefaultHandshakeTimeout,
		callTimeout:      DefaultCallTimeout,
		pending:          make(map[MustString]chan responseEnvelope),
	}
	for _, opt := range opts {
		opt(s)
	}

	tr.SetMessageHandler(s.handleMessage)
	tr.SetErrorHandler(func(err error) {
		logger.KV(xlog.WARNING, "session", s.id, "status", "transport_error", "err", err.Error())
	})
	tr.SetCloseHandler(func() {
		s.markDead()
	})

	if err := tr.Start(ctx); err != nil {
		_ = tr.Close()
		return nil, errors.WithMessagef(err, "session %s: failed to start transport", id)
	}
	s.started = true

	if err := s.initialize(ctx); err != nil {
		_ = s.Close()
		return nil, errors.WithMessagef(err, "session %s", id)
	}
	s.state.Store(int32(StateReady))

	logger.KV(xlog.DEBUG,
		"session", s.id,
		"status", "ready",
		"server", s.serverInfo.Name,
		"server_version", s.serverInfo.Version,
	)
	return s, nil
}

// ID returns the session identifier assigned at Dial.
func (s *Session) ID() string {
	return s.id
}

// State returns the current liveness state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ServerInfo returns the provider's identification from the handshake.
func (s *Session) ServerInfo() Info {
	return s.serverInfo
}

// Capabilities returns the capability families advertised by the provider.
func (s *Session) Capabilities() ServerCapabilities {
	return s.caps
}

func (s *Session) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      s.info,
	}
	res, err := s.request(ctx, MethodInitialize, params, s.handshakeTimeout)
	if err != nil {
		return errors.WithSecondaryError(ErrHandshakeFailed, err)
	}

	var result InitializeResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return errors.WithSecondaryError(ErrHandshakeFailed, err)
	}
	if result.ProtocolVersion != ProtocolVersion {
		return errors.WithMessagef(ErrHandshakeFailed,
			"protocol version mismatch: %s != %s", result.ProtocolVersion, ProtocolVersion)
	}

	s.serverInfo = result.ServerInfo
	s.caps = result.Capabilities

	return s.notify(ctx, notificationInitialized, nil)
}

// Ping verifies that the provider is responsive.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.request(ctx, MethodPing, nil, s.callTimeout)
	return err
}

// ListTools enumerates every tool exposed by the provider, following
// pagination cursors until the listing is complete.
func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	if s.caps.Tools == nil {
		return nil, nil
	}
	var tools []Tool
	cursor := ""
	for {
		res, err := s.request(ctx, MethodToolsList, ListToolsParams{Cursor: cursor}, s.callTimeout)
		if err != nil {
			return nil, err
		}
		var page ListToolsResult
		if err := json.Unmarshal(res.Result, &page); err != nil {
			return nil, errors.WithMessage(err, "malformed tools/list result")
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

// ListResources enumerates every concrete resource exposed by the provider.
func (s *Session) ListResources(ctx context.Context) ([]Resource, error) {
	if s.caps.Resources == nil {
		return nil, nil
	}
	var list []Resource
	cursor := ""
	for {
		res, err := s.request(ctx, MethodResourcesList, ListResourcesParams{Cursor: cursor}, s.callTimeout)
		if err != nil {
			return nil, err
		}
		var page ListResourcesResult
		if err := json.Unmarshal(res.Result, &page); err != nil {
			return nil, errors.WithMessage(err, "malformed resources/list result")
		}
		list = append(list, page.Resources...)
		if page.NextCursor == "" {
			return list, nil
		}
		cursor = page.NextCursor
	}
}

// ListResourceTemplates enumerates the provider's parametrized resources.
// Providers that predate templates answer with method-not-found; that is
// treated as an empty listing rather than a discovery failure.
func (s *Session) ListResourceTemplates(ctx context.Context) ([]ResourceTemplate, error) {
	if s.caps.Resources == nil {
		return nil, nil
	}
	res, err := s.request(ctx, MethodResourcesTemplates, ListResourceTemplatesParams{}, s.callTimeout)
	if err != nil {
		var rpcerr *RPCError
		if errors.As(err, &rpcerr) && rpcerr.Code == CodeMethodNotFound {
			return nil, nil
		}
		return nil, err
	}
	var page ListResourceTemplatesResult
	if err := json.Unmarshal(res.Result, &page); err != nil {
		return nil, errors.WithMessage(err, "malformed resources/templates/list result")
	}
	return page.Templates, nil
}

// CallTool invokes a named tool and waits for its result or the per-call
// timeout, whichever comes first. A timeout leaves the session intact.
func (s *Session) CallTool(ctx context.Context, name string, args json.RawMessage) (CallToolResult, error) {
	if s.caps.Tools == nil {
		return CallToolResult{}, errors.WithMessagef(ErrNotSupported, "tools, session %s", s.id)
	}
	res, err := s.request(ctx, MethodToolsCall, CallToolParams{Name: name, Arguments: args}, s.callTimeout)
	if err != nil {
		return CallToolResult{}, err
	}
	var result CallToolResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return CallToolResult{}, errors.WithMessage(err, "malformed tools/call result")
	}
	return result, nil
}

// ReadResource reads a resource by URI.
func (s *Session) ReadResource(ctx context.Context, uri string) (ReadResourceResult, error) {
	if s.caps.Resources == nil {
		return ReadResourceResult{}, errors.WithMessagef(ErrNotSupported, "resources, session %s", s.id)
	}
	res, err := s.request(ctx, MethodResourcesRead, ReadResourceParams{URI: uri}, s.callTimeout)
	if err != nil {
		return ReadResourceResult{}, err
	}
	var result ReadResourceResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return ReadResourceResult{}, errors.WithMessage(err, "malformed resources/read result")
	}
	return result, nil
}

// Close tears down the session and its provider process. It is idempotent and
// safe to call on an already-dead session.
func (s *Session) Close() error {
	switch s.State() {
	case StateClosing, StateDead:
		return nil
	}
	s.state.Store(int32(StateClosing))
	// Transport close fires the close handler, which marks the session Dead
	// and fails any pending calls.
	return s.transport.Close()
}

func (s *Session) request(ctx context.Context, method string, params any, timeout time.Duration) (*Message, error) {
	switch s.State() {
	case StateDead:
		return nil, errors.WithMessagef(ErrSessionLost, "session %s", s.id)
	case StateClosing:
		return nil, errors.WithMessagef(ErrSessionClosed, "session %s", s.id)
	}

	id := MustString(uuid.NewString())
	ch := make(chan responseEnvelope, 1)

	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return nil, errors.WithMessagef(ErrSessionLost, "session %s", s.id)
	}
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	msg := &Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to marshal %s params", method)
		}
		msg.Params = raw
	}

	if err := s.transport.Send(ctx, msg); err != nil {
		if s.State() == StateDead {
			return nil, errors.WithSecondaryError(errors.WithMessagef(ErrSessionLost, "session %s", s.id), err)
		}
		return nil, errors.WithMessagef(err, "session %s: failed to send %s", s.id, method)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-ch:
		if env.err != nil {
			return nil, env.err
		}
		if env.msg.Error != nil {
			return nil, errors.WithMessagef(env.msg.Error, "session %s: %s", s.id, method)
		}
		return env.msg, nil
	case <-ctx.Done():
		_ = s.notify(context.Background(), notificationCancelled, cancelledParams{RequestID: id, Reason: ctx.Err().Error()})
		return nil, ctx.Err()
	case <-timer.C:
		_ = s.notify(context.Background(), notificationCancelled, cancelledParams{RequestID: id, Reason: "request timeout"})
		return nil, errors.WithMessagef(ErrRequestTimeout, "session %s: %s after %v", s.id, method, timeout)
	}
}

func (s *Session) notify(ctx context.Context, method string, params any) error {
	msg := &Message{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return errors.WithMessagef(err, "failed to marshal %s params", method)
		}
		msg.Params = raw
	}
	return s.transport.Send(ctx, msg)
}

func (s *Session) handleMessage(ctx context.Context, msg *Message) {
	if msg.JSONRPC != JSONRPCVersion {
		logger.KV(xlog.WARNING, "session", s.id, "status", "invalid_jsonrpc_version", "version", msg.JSONRPC)
		return
	}

	if msg.IsResponse() {
		s.mu.Lock()
		ch := s.pending[msg.ID]
		s.mu.Unlock()
		if ch == nil {
			logger.KV(xlog.DEBUG, "session", s.id, "status", "unmatched_response", "id", string(msg.ID))
			return
		}
		select {
		case ch <- responseEnvelope{msg: msg}:
		default:
		}
		return
	}

	// Providers may ping the client to probe liveness; anything else inbound
	// is outside this client's contract and is logged and dropped.
	if msg.Method == MethodPing && msg.ID != "" {
		_ = s.transport.Send(ctx, &Message{
			JSONRPC: JSONRPCVersion,
			ID:      msg.ID,
			Result:  json.RawMessage("{}"),
		})
		return
	}
	logger.KV(xlog.DEBUG, "session", s.id, "status", "unhandled_message", "method", msg.Method)
}

func (s *Session) markDead() {
	prev := State(s.state.Swap(int32(StateDead)))
	if prev == StateDead {
		return
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for id, ch := range pending {
		select {
		case ch <- responseEnvelope{err: errors.WithMessagef(ErrSessionLost, "session %s: request %s abandoned", s.id, string(id))}:
		default:
		}
	}

	logger.KV(xlog.INFO, "session", s.id, "status", "dead", "pending_failed", len(pending))

	if s.closeHook != nil {
		s.closeHook(s.id)
	}
}
