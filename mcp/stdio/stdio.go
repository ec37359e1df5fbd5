// Package stdio implements the newline-delimited JSON transport over the
// standard streams of a child process. Each JSON-RPC message occupies exactly
// one line on the wire.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/medichat", "stdio")

// Transport moves messages over a reader/writer pair, typically the stdin and
// stdout pipes of a spawned tool provider.
type Transport struct {
	command string
	args    []string
	env     []string

	cmd    *exec.Cmd
	writer io.Writer
	reader io.Reader

	writeMu sync.Mutex

	mu             sync.Mutex
	started        bool
	messageHandler func(ctx context.Context, msg *mcp.Message)
	errorHandler   func(error)
	closeHandler   func()

	closeOnce sync.Once
	done      chan struct{}
}

// NewCommand creates a transport that spawns the given command on Start and
// speaks the protocol over its stdin/stdout. env entries are appended to the
// parent environment.
func NewCommand(command string, args []string, env []string) *Transport {
	return &Transport{
		command: command,
		args:    args,
		env:     env,
		done:    make(chan struct{}),
	}
}

// New creates a transport over an existing reader/writer pair. Used by
// provider processes to serve on their own stdin/stdout, and by tests.
func New(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		reader: r,
		writer: w,
		done:   make(chan struct{}),
	}
}

// Start spawns the child process, if any, and begins reading messages.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.started = true
	t.mu.Unlock()

	if t.command != "" {
		if err := t.spawn(ctx); err != nil {
			return err
		}
	}

	go t.readLoop(ctx)
	return nil
}

func (t *Transport) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Env = append(os.Environ(), t.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.WithMessage(err, "failed to open stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.WithMessage(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.WithMessage(err, "failed to open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.WithMessagef(err, "failed to start %q", t.command)
	}

	t.cmd = cmd
	t.writer = stdin
	t.reader = stdout

	go t.drainStderr(stderr)
	go func() {
		err := cmd.Wait()
		if err != nil {
			t.fireError(errors.WithMessagef(err, "process %q exited", t.command))
		}
		t.markDone()
	}()
	return nil
}

// drainStderr keeps the child from blocking on a full stderr pipe and
// surfaces its diagnostics in our logs.
func (t *Transport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logger.KV(xlog.DEBUG, "command", t.command, "stderr", scanner.Text())
	}
}

func (t *Transport) readLoop(ctx context.Context) {
	reader := bufio.NewReader(t.reader)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			t.dispatch(ctx, line)
		}
		if err != nil {
			if err != io.EOF {
				t.fireError(errors.WithMessage(err, "failed to read from transport"))
			}
			t.markDone()
			return
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var msg mcp.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		t.fireError(errors.WithMessage(err, "failed to parse message"))
		return
	}

	t.mu.Lock()
	handler := t.messageHandler
	t.mu.Unlock()
	if handler != nil {
		handler(ctx, &msg)
	}
}

// Send writes one message as a single line. Writes are serialized so that
// concurrent senders never interleave bytes on the wire.
func (t *Transport) Send(ctx context.Context, msg *mcp.Message) error {
	select {
	case <-t.done:
		return errors.New("transport is closed")
	default:
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.WithMessage(err, "failed to encode message")
	}
	raw = append(raw, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(raw); err != nil {
		return errors.WithMessage(err, "failed to write to transport")
	}
	return nil
}

// Close tears the transport down. For a spawned process the stdin pipe is
// closed first, giving it a chance to exit cleanly, then the process is
// killed if still running. Safe to call more than once.
func (t *Transport) Close() error {
	t.markDone()

	if closer, ok := t.writer.(io.Closer); ok {
		_ = closer.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return nil
}

// markDone flips the transport to the closed state exactly once and fires
// the close handler.
func (t *Transport) markDone() {
	t.closeOnce.Do(func() {
		close(t.done)

		t.mu.Lock()
		handler := t.closeHandler
		t.closeHandler = nil
		t.mu.Unlock()
		if handler != nil {
			handler()
		}
	})
}

func (t *Transport) fireError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (t *Transport) SetMessageHandler(handler func(ctx context.Context, msg *mcp.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}
