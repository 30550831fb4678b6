package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wantRole Role
		wantN    int
		wantOK   bool
	}{
		{"worker-3", RoleWorker, 3, true},
		{"worker3", RoleWorker, 3, true},
		{"control-plane-2", RoleControlPlane, 2, true},
		{"controlplane2", RoleControlPlane, 2, true},
		{"worker-0", "", 0, false},
		{"master-1", "", 0, false},
		{"worker-", "", 0, false},
		{"", "", 0, false},
	}

	for _, tt := range tests {
		role, n, ok := ParseNodeName(tt.name)
		assert.Equal(t, tt.wantOK, ok, tt.name)
		if tt.wantOK {
			assert.Equal(t, tt.wantRole, role, tt.name)
			assert.Equal(t, tt.wantN, n, tt.name)
		}
	}
}

func TestRosterContainsMatchesLegacyVariant(t *testing.T) {
	t.Parallel()

	r := Roster{{Name: "worker3", Role: RoleWorker, State: StateJoined}}

	assert.True(t, r.Contains("worker-3"))
	assert.True(t, r.Contains("worker3"))
	assert.False(t, r.Contains("worker-4"))
	assert.False(t, r.Contains("control-plane-3"))
}

func TestRosterAddRejectsDuplicateSlot(t *testing.T) {
	t.Parallel()

	var r Roster
	require.NoError(t, r.Add(NodeSpec{Name: "worker-3", Role: RoleWorker, State: StatePlanned}))

	err := r.Add(NodeSpec{Name: "worker3", Role: RoleWorker, State: StatePlanned})
	require.Error(t, err)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRosterAddRejectsMalformedName(t *testing.T) {
	t.Parallel()

	var r Roster
	err := r.Add(NodeSpec{Name: "gateway-1", Role: RoleWorker, State: StatePlanned})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestHighestSuffixIncludesRemovedEntries(t *testing.T) {
	t.Parallel()

	r := Roster{
		{Name: "worker-3", Role: RoleWorker, State: StateRemoved},
		{Name: "worker-4", Role: RoleWorker, State: StateJoined},
		{Name: "control-plane-2", Role: RoleControlPlane, State: StateReady},
	}

	assert.Equal(t, 4, r.HighestSuffix(RoleWorker))
	assert.Equal(t, 2, r.HighestSuffix(RoleControlPlane))
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	assert.True(t, StatePlanned.CanAdvanceTo(StateProvisioned))
	assert.True(t, StateProvisioned.CanAdvanceTo(StateJoined))
	assert.True(t, StateJoined.CanAdvanceTo(StateReady))
	assert.True(t, StateReady.CanAdvanceTo(StateRemoved))

	// A node may not report joined before the infra adapter reported it
	// provisioned.
	assert.False(t, StatePlanned.CanAdvanceTo(StateJoined))
	assert.False(t, StateProvisioned.CanAdvanceTo(StateReady))
	assert.False(t, StateRemoved.CanAdvanceTo(StateJoined))
}

func TestSetStateEnforcesOrder(t *testing.T) {
	t.Parallel()

	r := Roster{{Name: "worker-3", Role: RoleWorker, State: StatePlanned}}

	require.Error(t, r.SetState("worker-3", StateJoined))
	require.NoError(t, r.SetState("worker-3", StateProvisioned))
	require.NoError(t, r.SetState("worker-3", StateJoined))
	require.Error(t, r.SetState("worker-9", StateJoined))
}

func TestActiveAndByRoleSkipRemoved(t *testing.T) {
	t.Parallel()

	r := Roster{
		{Name: "worker-3", Role: RoleWorker, State: StateRemoved},
		{Name: "worker-4", Role: RoleWorker, State: StateReady},
		{Name: "control-plane-2", Role: RoleControlPlane, State: StateReady},
	}

	assert.Len(t, r.Active(), 2)
	workers := r.ByRole(RoleWorker)
	require.Len(t, workers, 1)
	assert.Equal(t, "worker-4", workers[0].Name)
}

func TestIsProtectedName(t *testing.T) {
	t.Parallel()

	assert.True(t, IsProtectedName("worker-1"))
	assert.True(t, IsProtectedName("worker-2"))
	assert.True(t, IsProtectedName("control-plane-1"))
	assert.True(t, IsProtectedName("worker2"))
	assert.False(t, IsProtectedName("worker-3"))
	assert.False(t, IsProtectedName("not-a-node"))
}
