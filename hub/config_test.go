package hub_test

import (
	"testing"

	"github.com/effective-security/medichat/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := hub.LoadConfig("testdata/hub.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)

	assert.Equal(t, "research", cfg.Servers[0].ID)
	assert.Equal(t, "research-server", cfg.Servers[0].Command)
	assert.Equal(t, []string{"--papers-dir", "/var/lib/medichat/papers"}, cfg.Servers[0].Args)
	assert.Equal(t, "pharmacy", cfg.Servers[1].ID)
	assert.Equal(t, hub.HistoryPersist, cfg.History)

	cfg, err = hub.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Servers)

	_, err = hub.LoadConfig("testdata/missing.yaml")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tcases := []struct {
		name string
		cfg  hub.Config
		err  string
	}{
		{
			name: "missing id",
			cfg:  hub.Config{Servers: []*hub.ServerConfig{{Command: "x"}}},
			err:  "server id is required",
		},
		{
			name: "duplicate id",
			cfg: hub.Config{Servers: []*hub.ServerConfig{
				{ID: "a", Command: "x"},
				{ID: "a", Command: "y"},
			}},
			err: "duplicate server id: a",
		},
		{
			name: "missing command",
			cfg:  hub.Config{Servers: []*hub.ServerConfig{{ID: "a"}}},
			err:  "server a: command is required",
		},
		{
			name: "bad history",
			cfg:  hub.Config{History: "sometimes"},
			err:  "invalid history mode: sometimes",
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.EqualError(t, tc.cfg.Validate(), tc.err)
		})
	}
}
