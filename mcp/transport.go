package mcp

import "context"

// Transport moves framed protocol messages between the orchestrator and one
// provider process. Implementations must delimit discrete messages
// unambiguously and must serialize concurrent Send calls internally.
type Transport interface {
	// Start begins reading from the channel. Handlers must be set before
	// Start is called.
	Start(ctx context.Context) error
	// Send writes one message. It is safe for concurrent use.
	Send(ctx context.Context, msg *Message) error
	// Close terminates the channel and releases any OS resources, including
	// the provider process for process-backed transports. It is idempotent
	// and safe to call on an already-dead transport.
	Close() error

	// SetMessageHandler sets the callback invoked for every inbound message.
	SetMessageHandler(handler func(ctx context.Context, msg *Message))
	// SetErrorHandler sets the callback for out-of-band transport errors.
	// Such errors are not necessarily fatal to the channel.
	SetErrorHandler(handler func(err error))
	// SetCloseHandler sets the callback invoked exactly once when the channel
	// dies for any reason, including Close.
	SetCloseHandler(handler func())
}
