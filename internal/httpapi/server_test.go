package httpapi

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravnltd/muninn/internal/config"
	"github.com/ravnltd/muninn/internal/store"
)

const testToken = "a-long-shared-token-value-0123456789"

func newTestServer(t *testing.T, bypass bool) *httptest.Server {
	t.Helper()
	adapter := store.NewLocalAdapter(":memory:", "")
	require.NoError(t, adapter.Init())
	t.Cleanup(func() { adapter.Close() })

	cfg := config.Default(t.TempDir())
	cfg.APIToken = testToken
	cfg.LocalhostBypass = bypass

	srv := httptest.NewServer(NewServer(adapter, cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestStatementsEndToEndWithRemoteAdapter(t *testing.T) {
	srv := newTestServer(t, false)

	remote := store.NewRemoteAdapter(srv.URL, testToken)
	require.NoError(t, remote.Init())
	s := store.New(remote)

	p, err := s.EnsureProject("/shared/proj")
	require.NoError(t, err)
	require.NotZero(t, p.ID)

	_, err = s.UpsertFile(p.ID, "pkg/api.go", "public api", 0)
	require.NoError(t, err)

	f, err := s.GetFile(p.ID, "pkg/api.go")
	require.NoError(t, err)
	require.Equal(t, "public api", f.Purpose)
}

func TestStatementsRequireAuth(t *testing.T) {
	srv := newTestServer(t, false)

	// Wrong token is rejected before any statement executes.
	remote := store.NewRemoteAdapter(srv.URL, "wrong-token")
	err := remote.Init()
	require.Error(t, err)
}

func TestLocalhostBypass(t *testing.T) {
	srv := newTestServer(t, true)

	// httptest serves on 127.0.0.1, so the bypass admits a tokenless client.
	remote := store.NewRemoteAdapter(srv.URL, "")
	require.NoError(t, remote.Init())
}
