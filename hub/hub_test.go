package hub_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/hub"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/medichat/mcp/localtransport"
	"github.com/effective-security/medichat/registry"
	"github.com/effective-security/medichat/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProviders runs provider servers in-process and hands their client
// transports to the hub through WithDialer.
type testProviders struct {
	mu        sync.Mutex
	servers   map[string]*mcp.Server
	serverTrs map[string]mcp.Transport
}

func newTestProviders() *testProviders {
	return &testProviders{
		servers:   make(map[string]*mcp.Server),
		serverTrs: make(map[string]mcp.Transport),
	}
}

func (p *testProviders) add(id string, setup func(*mcp.Server)) {
	srv := mcp.NewServer(id, "1.0.0")
	setup(srv)
	p.servers[id] = srv
}

func (p *testProviders) dial(ctx context.Context, sc *hub.ServerConfig) (mcp.Transport, error) {
	srv := p.servers[sc.ID]
	if srv == nil {
		return nil, errors.Newf("no such provider: %s", sc.ID)
	}
	clientTr, serverTr := localtransport.Pipe()
	p.mu.Lock()
	p.serverTrs[sc.ID] = serverTr
	p.mu.Unlock()
	go func() {
		_ = srv.Serve(ctx, serverTr)
	}()
	return clientTr, nil
}

func (p *testProviders) crash(id string) {
	p.mu.Lock()
	tr := p.serverTrs[id]
	p.mu.Unlock()
	_ = tr.Close()
}

func echoTool(name string) func(*mcp.Server) {
	return func(srv *mcp.Server) {
		srv.RegisterTool(mcp.Tool{Name: name, InputSchema: json.RawMessage(`{"type":"object"}`)},
			func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
				return mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent(name)}}, nil
			})
	}
}

func serverConfigs(ids ...string) []*hub.ServerConfig {
	var out []*hub.ServerConfig
	for _, id := range ids {
		out = append(out, &hub.ServerConfig{ID: id, Command: "/usr/bin/" + id})
	}
	return out
}

func TestOpenAndRoute(t *testing.T) {
	ctx := context.Background()

	providers := newTestProviders()
	providers.add("research", echoTool("search_papers"))
	providers.add("pharmacy", echoTool("lookup_stock"))

	h := hub.New(&hub.Config{Servers: serverConfigs("research", "pharmacy")},
		hub.WithDialer(providers.dial))
	require.NoError(t, h.Open(ctx))

	require.Len(t, h.Registry().Tools(), 2)
	assert.Equal(t, []string{"pharmacy", "research"}, h.Registry().SessionIDs())

	r := router.New(h.Registry(), h)
	res, err := r.Invoke(ctx, "search_papers", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "search_papers", res.JoinedText())

	res, err = r.Invoke(ctx, "lookup_stock", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "lookup_stock", res.JoinedText())

	require.NoError(t, h.Shutdown(ctx))
	sess, ok := h.Session("research")
	require.True(t, ok)
	assert.Equal(t, mcp.StateDead, sess.State())

	// Shutdown is idempotent.
	require.NoError(t, h.Shutdown(ctx))
}

func TestOpenDuplicateCapabilityFails(t *testing.T) {
	ctx := context.Background()

	providers := newTestProviders()
	providers.add("research", echoTool("search_papers"))
	providers.add("archive", echoTool("search_papers"))

	h := hub.New(&hub.Config{Servers: serverConfigs("research", "archive")},
		hub.WithDialer(providers.dial))
	err := h.Open(ctx)
	require.Error(t, err)

	var dup *registry.DuplicateCapabilityError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "search_papers", dup.Name)

	// Startup failure tears down the sessions that were already opened.
	for _, id := range []string{"research", "archive"} {
		if sess, ok := h.Session(id); ok {
			assert.Equal(t, mcp.StateDead, sess.State(), id)
		}
	}
}

func TestOpenDialFailure(t *testing.T) {
	ctx := context.Background()

	providers := newTestProviders()
	providers.add("research", echoTool("search_papers"))

	h := hub.New(&hub.Config{Servers: serverConfigs("research", "missing")},
		hub.WithDialer(providers.dial))
	err := h.Open(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	sess, ok := h.Session("research")
	require.True(t, ok)
	assert.Equal(t, mcp.StateDead, sess.State())
}

func TestCrashIsolation(t *testing.T) {
	ctx := context.Background()

	providers := newTestProviders()
	providers.add("research", echoTool("search_papers"))
	providers.add("pharmacy", echoTool("lookup_stock"))

	h := hub.New(&hub.Config{Servers: serverConfigs("research", "pharmacy")},
		hub.WithDialer(providers.dial))
	require.NoError(t, h.Open(ctx))
	t.Cleanup(func() {
		_ = h.Shutdown(context.Background())
	})

	providers.crash("research")

	sess, ok := h.Session("research")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return sess.State() == mcp.StateDead
	}, time.Second, 10*time.Millisecond)

	r := router.New(h.Registry(), h)
	_, err := r.Invoke(ctx, "search_papers", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, router.ErrToolUnavailable))

	// The surviving session keeps serving.
	res, err := r.Invoke(ctx, "lookup_stock", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "lookup_stock", res.JoinedText())
}

func TestHistoryMode(t *testing.T) {
	h := hub.New(&hub.Config{})
	assert.Equal(t, hub.HistoryReset, h.HistoryMode())

	h = hub.New(&hub.Config{History: hub.HistoryPersist})
	assert.Equal(t, hub.HistoryPersist, h.HistoryMode())
}
