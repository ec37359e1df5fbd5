package router_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/medichat/mcp/localtransport"
	"github.com/effective-security/medichat/registry"
	"github.com/effective-security/medichat/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionMap map[string]*mcp.Session

func (m sessionMap) Session(id string) (*mcp.Session, bool) {
	sess, ok := m[id]
	return sess, ok
}

func dialProvider(t *testing.T, ctx context.Context, id string, setup func(*mcp.Server), opts ...mcp.SessionOption) *mcp.Session {
	t.Helper()

	clientTr, serverTr := localtransport.Pipe()
	srv := mcp.NewServer(id, "1.0.0")
	setup(srv)
	go func() {
		_ = srv.Serve(ctx, serverTr)
	}()

	sess, err := mcp.Dial(ctx, id, clientTr, mcp.Info{Name: "medichat", Version: "dev"}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sess.Close()
	})
	return sess
}

func buildRouter(t *testing.T, sessions sessionMap) *router.Router {
	t.Helper()

	reg := registry.New()
	for _, sess := range sessions {
		cat, err := registry.Discover(context.Background(), sess)
		require.NoError(t, err)
		require.NoError(t, reg.Merge(cat))
	}
	return router.New(reg, sessions)
}

func TestInvokeUnknownTool(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int64
	sess := dialProvider(t, ctx, "research", func(srv *mcp.Server) {
		srv.RegisterTool(mcp.Tool{Name: "search_papers", InputSchema: json.RawMessage(`{"type":"object"}`)},
			func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
				calls.Add(1)
				return mcp.CallToolResult{}, nil
			})
	})

	r := buildRouter(t, sessionMap{"research": sess})
	_, err := r.Invoke(ctx, "lookup_stock", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, router.ErrUnknownTool))
	// No provider was contacted for the unknown name.
	assert.Equal(t, int64(0), calls.Load())
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()

	sess := dialProvider(t, ctx, "research", func(srv *mcp.Server) {
		srv.RegisterTool(mcp.Tool{Name: "echo", InputSchema: json.RawMessage(`{"type":"object"}`)},
			func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
				var in struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return mcp.CallToolResult{}, err
				}
				return mcp.CallToolResult{
					Content: []mcp.Content{mcp.TextContent(in.Text)},
				}, nil
			})
	})

	r := buildRouter(t, sessionMap{"research": sess})
	res, err := r.Invoke(ctx, "echo", json.RawMessage(`{"text":"ibuprofen"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "ibuprofen", res.JoinedText())
}

func TestInvokeTimeoutKeepsSessionUsable(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	sess := dialProvider(t, ctx, "research", func(srv *mcp.Server) {
		srv.RegisterTool(mcp.Tool{Name: "slow", InputSchema: json.RawMessage(`{"type":"object"}`)},
			func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
				select {
				case <-release:
				case <-ctx.Done():
				}
				return mcp.CallToolResult{}, nil
			})
		srv.RegisterTool(mcp.Tool{Name: "fast", InputSchema: json.RawMessage(`{"type":"object"}`)},
			func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
				return mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent("ok")}}, nil
			})
	}, mcp.WithCallTimeout(50*time.Millisecond))

	r := buildRouter(t, sessionMap{"research": sess})

	_, err := r.Invoke(ctx, "slow", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, router.ErrToolTimeout))

	// The session survives a per-call timeout.
	require.Equal(t, mcp.StateReady, sess.State())
	res, err := r.Invoke(ctx, "fast", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.JoinedText())
}

func TestInvokeDeadSession(t *testing.T) {
	ctx := context.Background()

	clientTr, serverTr := localtransport.Pipe()
	srv := mcp.NewServer("research", "1.0.0")
	srv.RegisterTool(mcp.Tool{Name: "echo", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
			return mcp.CallToolResult{}, nil
		})
	go func() {
		_ = srv.Serve(ctx, serverTr)
	}()

	sess, err := mcp.Dial(ctx, "research", clientTr, mcp.Info{Name: "medichat", Version: "dev"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	r := buildRouter(t, sessionMap{"research": sess})

	require.NoError(t, serverTr.Close())
	require.Eventually(t, func() bool {
		return sess.State() == mcp.StateDead
	}, time.Second, 10*time.Millisecond)

	_, err = r.Invoke(ctx, "echo", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, router.ErrToolUnavailable))
}

func TestInvokeMissingSession(t *testing.T) {
	ctx := context.Background()

	reg := registry.New()
	require.NoError(t, reg.Merge(&registry.Catalog{
		SessionID: "gone",
		Tools: []registry.ToolDescriptor{
			{Tool: mcp.Tool{Name: "echo"}, SessionID: "gone"},
		},
	}))

	r := router.New(reg, sessionMap{})
	_, err := r.Invoke(ctx, "echo", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, router.ErrToolUnavailable))
}

func TestReadResourceRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()

	var attempts atomic.Int64
	sess := dialProvider(t, ctx, "research", func(srv *mcp.Server) {
		srv.RegisterResource(mcp.Resource{URI: "papers://folders", Name: "folders"},
			func(ctx context.Context, uri string, vars map[string]string) (mcp.ReadResourceResult, error) {
				if attempts.Add(1) == 1 {
					return mcp.ReadResourceResult{}, errors.New("cache is rebuilding")
				}
				return mcp.ReadResourceResult{
					Contents: []mcp.ResourceContents{{URI: uri, MimeType: "text/markdown", Text: "## Topics"}},
				}, nil
			})
	})

	r := buildRouter(t, sessionMap{"research": sess})
	res, err := r.ReadResource(ctx, "papers://folders")
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "## Topics", res.Contents[0].Text)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestReadResourceUnavailable(t *testing.T) {
	ctx := context.Background()

	var attempts atomic.Int64
	sess := dialProvider(t, ctx, "research", func(srv *mcp.Server) {
		srv.RegisterResource(mcp.Resource{URI: "papers://folders", Name: "folders"},
			func(ctx context.Context, uri string, vars map[string]string) (mcp.ReadResourceResult, error) {
				attempts.Add(1)
				return mcp.ReadResourceResult{}, errors.New("storage offline")
			})
	})

	r := buildRouter(t, sessionMap{"research": sess})
	_, err := r.ReadResource(ctx, "papers://folders")
	require.Error(t, err)
	assert.True(t, errors.Is(err, router.ErrResourceUnavailable))
	assert.Equal(t, int64(2), attempts.Load())
}

func TestReadResourceNoMatch(t *testing.T) {
	ctx := context.Background()

	r := router.New(registry.New(), sessionMap{})
	_, err := r.ReadResource(ctx, "papers://folders")
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNoMatchingResource))
}
