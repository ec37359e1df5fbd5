package mcp

import "github.com/cockroachdb/errors"

var (
	// ErrSessionLost is returned for calls that were in flight when the
	// transport died, and for any call attempted on a Dead session.
	ErrSessionLost = errors.New("session lost")
	// ErrSessionClosed is returned for calls attempted after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrHandshakeFailed is returned by Dial when the provider does not
	// complete initialization in time or rejects the protocol version.
	ErrHandshakeFailed = errors.New("initialization handshake failed")
	// ErrRequestTimeout is returned when a provider does not answer a request
	// within the per-call bound.
	ErrRequestTimeout = errors.New("request timeout")
	// ErrNotSupported is returned when a capability family is not advertised
	// by the provider.
	ErrNotSupported = errors.New("capability not supported by provider")
)
