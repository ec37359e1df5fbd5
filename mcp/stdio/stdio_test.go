package stdio_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/medichat/mcp/stdio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipePair wires two transports together the way a parent and child process
// would be over stdin/stdout.
func pipePair() (client, server *stdio.Transport) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()
	return stdio.New(clientReader, clientWriter), stdio.New(serverReader, serverWriter)
}

func TestFramingRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, server := pipePair()

	var mu sync.Mutex
	var received []*mcp.Message
	server.SetMessageHandler(func(ctx context.Context, msg *mcp.Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	require.NoError(t, client.Start(ctx))
	require.NoError(t, server.Start(ctx))
	defer client.Close()
	defer server.Close()

	for i := 0; i < 3; i++ {
		err := client.Send(ctx, &mcp.Message{
			JSONRPC: mcp.JSONRPCVersion,
			ID:      mcp.MustString("42"),
			Method:  mcp.MethodPing,
			Params:  json.RawMessage(`{"seq":` + string(rune('0'+i)) + `}`),
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, mcp.MustString("42"), received[0].ID)
	assert.Equal(t, mcp.MethodPing, received[0].Method)
}

func TestSessionOverStdio(t *testing.T) {
	ctx := context.Background()
	clientTr, serverTr := pipePair()

	srv := mcp.NewServer("stdio-provider", "1.0.0")
	srv.RegisterTool(mcp.Tool{
		Name:        "greet",
		Description: "Greets the caller",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}, func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
		return mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent("hi")},
		}, nil
	})
	go func() {
		_ = srv.Serve(ctx, serverTr)
	}()

	sess, err := mcp.Dial(ctx, "stdio", clientTr, mcp.Info{Name: "medichat", Version: "dev"})
	require.NoError(t, err)
	defer sess.Close()

	res, err := sess.CallTool(ctx, "greet", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", res.JoinedText())
}

func TestCloseFiresCloseHandler(t *testing.T) {
	ctx := context.Background()
	client, server := pipePair()

	closed := make(chan struct{})
	client.SetCloseHandler(func() {
		close(closed)
	})

	require.NoError(t, client.Start(ctx))
	require.NoError(t, server.Start(ctx))

	require.NoError(t, client.Close())
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close handler did not fire")
	}

	err := client.Send(ctx, &mcp.Message{JSONRPC: mcp.JSONRPCVersion, Method: mcp.MethodPing})
	require.Error(t, err)
}

func TestPeerEOFFiresCloseHandler(t *testing.T) {
	ctx := context.Background()
	client, server := pipePair()

	closed := make(chan struct{})
	client.SetCloseHandler(func() {
		close(closed)
	})

	require.NoError(t, client.Start(ctx))
	require.NoError(t, server.Start(ctx))

	// The peer going away is observed as EOF on our read side.
	require.NoError(t, server.Close())
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close handler did not fire on peer EOF")
	}
}
