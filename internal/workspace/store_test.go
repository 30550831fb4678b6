package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return &Store{BaseDir: t.TempDir()}
}

func TestActiveContextFallback(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	name, err := s.ActiveContext()
	require.NoError(t, err)
	assert.Equal(t, DefaultContext, name)
}

func TestSetActiveContextRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.SetActiveContext("staging"))

	name, err := s.ActiveContext()
	require.NoError(t, err)
	assert.Equal(t, "staging", name)

	// Switching creates the workspace file rather than failing.
	assert.True(t, s.Exists("staging"))
}

func TestSetActiveContextValidation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	var verr *ValidationError
	for _, bad := range []string{"", "has space", strings.Repeat("x", 51), "all", "current"} {
		err := s.SetActiveContext(bad)
		require.Error(t, err, bad)
		assert.ErrorAs(t, err, &verr, bad)
	}

	// No side effect before validation passes.
	_, err := os.Stat(filepath.Join(s.BaseDir, "current_cluster_context"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveAndLoadWorkspace(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ws := New("prod")
	ws.Network.DNSServer = "10.0.0.2"
	require.NoError(t, ws.Roster.Add(NodeSpec{Name: "worker-3", Role: RoleWorker, State: StateJoined, Address: "10.10.10.13"}))
	require.NoError(t, s.Save(ws))

	got, err := s.Load("prod")
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Name)
	assert.Equal(t, "10.0.0.2", got.Network.DNSServer)
	require.Len(t, got.Roster, 1)
	assert.Equal(t, "worker-3", got.Roster[0].Name)
	assert.Equal(t, StateJoined, got.Roster[0].State)
}

func TestLoadMissingWorkspaceReturnsDefaults(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ws, err := s.Load("fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", ws.Name)
	assert.Equal(t, DefaultKubernetesVersion, ws.Versions.Kubernetes)
	assert.Empty(t, ws.Roster)
}

func TestLoadCorruptWorkspaceFails(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.BaseDir, "envs"), 0o755))
	require.NoError(t, os.WriteFile(s.ConfigPath("bad"), []byte("{not yaml: ["), 0o644))

	_, err := s.Load("bad")
	require.Error(t, err)
}

func TestCloneCopiesConfigNotRoster(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	src := New("prod")
	src.Versions.Kubernetes = "1.30.0"
	require.NoError(t, src.Roster.Add(NodeSpec{Name: "worker-3", Role: RoleWorker, State: StateJoined}))
	require.NoError(t, s.Save(src))

	require.NoError(t, s.Clone("prod", "prod-copy", "pre-upgrade"))

	got, err := s.Load("prod-copy")
	require.NoError(t, err)
	assert.Equal(t, "1.30.0", got.Versions.Kubernetes)
	assert.Empty(t, got.Roster, "roster history must not be cloned")
	assert.Equal(t, "pre-upgrade", got.Versions.Addons["clone-tag"])
}

func TestCloneRejectsBadTargets(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Save(New("prod")))
	require.NoError(t, s.Save(New("taken")))

	assert.Error(t, s.Clone("prod", "prod", ""))
	assert.Error(t, s.Clone("prod", "taken", ""))
	assert.Error(t, s.Clone("missing", "dest", ""))
	assert.Error(t, s.Clone("prod", "bad name", ""))
}

func TestDeleteConfig(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Save(New("doomed")))
	require.NoError(t, s.DeleteConfig("doomed"))
	assert.False(t, s.Exists("doomed"))

	assert.Error(t, s.DeleteConfig("doomed"))
}
