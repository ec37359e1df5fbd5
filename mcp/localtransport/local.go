// Package localtransport provides an in-process transport pair for wiring a
// provider server directly to a client session, without spawning a child
// process. It is primarily used in tests.
package localtransport

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/mcp"
)

// Pipe returns two connected transports. Messages sent on one side are
// delivered, in order, to the other side's message handler. Closing either
// side closes both.
func Pipe() (client, server mcp.Transport) {
	shared := &link{
		done: make(chan struct{}),
	}
	a := &endpoint{link: shared, inbox: make(chan *mcp.Message, 64)}
	b := &endpoint{link: shared, inbox: make(chan *mcp.Message, 64)}
	a.peer = b
	b.peer = a
	return a, b
}

type link struct {
	closeOnce sync.Once
	done      chan struct{}
}

type endpoint struct {
	link *link
	peer *endpoint

	inbox chan *mcp.Message

	mu             sync.Mutex
	started        bool
	messageHandler func(ctx context.Context, msg *mcp.Message)
	errorHandler   func(error)
	closeHandler   func()
}

func (e *endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("transport already started")
	}
	e.started = true
	e.mu.Unlock()

	go e.pump(ctx)
	return nil
}

// pump delivers inbound messages one at a time, preserving send order.
func (e *endpoint) pump(ctx context.Context) {
	for {
		select {
		case <-e.link.done:
			e.fireClose()
			return
		case <-ctx.Done():
			e.fireClose()
			return
		case msg := <-e.inbox:
			e.mu.Lock()
			handler := e.messageHandler
			e.mu.Unlock()
			if handler != nil {
				handler(ctx, msg)
			}
		}
	}
}

func (e *endpoint) Send(ctx context.Context, msg *mcp.Message) error {
	select {
	case <-e.link.done:
		return errors.New("transport is closed")
	case <-ctx.Done():
		return ctx.Err()
	case e.peer.inbox <- msg:
		return nil
	}
}

func (e *endpoint) Close() error {
	e.link.closeOnce.Do(func() {
		close(e.link.done)
	})
	return nil
}

func (e *endpoint) fireClose() {
	e.mu.Lock()
	handler := e.closeHandler
	e.closeHandler = nil
	e.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (e *endpoint) SetMessageHandler(handler func(ctx context.Context, msg *mcp.Message)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messageHandler = handler
}

func (e *endpoint) SetErrorHandler(handler func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHandler = handler
}

func (e *endpoint) SetCloseHandler(handler func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeHandler = handler
}
