package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farmndvi/internal/config"
	"github.com/sells-group/farmndvi/internal/model"
)

// getFreePort returns a free TCP port on localhost.
func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestResolvePort(t *testing.T) {
	c := &config.Config{Server: config.ServerConfig{Port: 8080}}
	assert.Equal(t, 8080, resolvePort(0, c))
	assert.Equal(t, 9090, resolvePort(9090, c))
}

// runServe starts the serve environment on a free port, as `serve --port`
// does, and returns its base URL and the environment. The server stops when
// the test ends.
func runServe(t *testing.T) (string, *ndviEnv) {
	t.Helper()
	cfg = testConfig(t)
	cfg.Server.Port = resolvePort(getFreePort(t), cfg)

	env, err := initEnv(context.Background(), "serve")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- startServer(ctx, buildHandler(env, cfg), cfg.Server.Port) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down in time")
		}
		env.Close()
	})

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	var ready bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get(base + "/health")
		if err == nil {
			_ = resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")
	return base, env
}

type snapshotBody struct {
	FarmID              string         `json:"farm_id"`
	UsingRealBoundaries bool           `json:"using_real_boundaries"`
	Fields              map[string]any `json:"fields"`
}

func getSnapshot(t *testing.T, url string) snapshotBody {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body snapshotBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestStartServer_Lifecycle(t *testing.T) {
	base, _ := runServe(t)

	body := getSnapshot(t, base+"/api/farms/farm-2/ndvi")
	assert.Equal(t, "farm-2", body.FarmID)
	assert.False(t, body.UsingRealBoundaries)
	assert.Len(t, body.Fields, 1)
}

func TestStartServer_StoredFieldsOnCustomPort(t *testing.T) {
	base, env := runServe(t)

	_, err := env.Store.UpsertFields(context.Background(), "farm-z", []model.FieldBoundary{storedField("mine")})
	require.NoError(t, err)

	body := getSnapshot(t, base+"/api/farms/farm-z/ndvi")
	assert.True(t, body.UsingRealBoundaries)
	assert.Len(t, body.Fields, 1)
	assert.Contains(t, body.Fields, "mine")
}

func TestStartServer_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck

	port := l.Addr().(*net.TCPAddr).Port
	err = startServer(context.Background(), http.NotFoundHandler(), port)
	assert.ErrorContains(t, err, "server listen")
}
