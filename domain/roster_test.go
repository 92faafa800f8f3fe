package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoster_Add_Twice_Is_NoOp(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()

	// Given a participant already in the roster
	req.True(roster.Add("c1", "alice-id", "Alice"))

	// When the same connection joins again with different attributes
	req.False(roster.Add("c1", "other-id", "Mallory"))

	// Then exactly one entry remains with the first-assigned attributes
	req.Equal(1, roster.Len())
	p, ok := roster.Get("c1")
	req.True(ok)
	req.Equal(Identity("alice-id"), p.Identity)
	req.Equal("Alice", p.DisplayName)
	req.False(p.Ready)
}

func TestRoster_Remove_Absent_Is_NoOp(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	roster.Add("c1", "alice-id", "Alice")

	// When removing a connection that never joined
	req.False(roster.Remove("ghost"))

	// Then the roster is unchanged
	req.Equal(1, roster.Len())
}

func TestRoster_SetReady_Absent_Is_NoOp(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()

	req.False(roster.SetReady("ghost", true))
	req.Equal(0, roster.Len())
}

func TestRoster_AllReady_Truth_Table(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()

	// An empty roster is never vacuously ready
	req.False(roster.AllReady())

	roster.Add("c1", "a", "A")
	roster.Add("c2", "b", "B")
	req.False(roster.AllReady())

	roster.SetReady("c1", true)
	// One participant still not ready
	req.False(roster.AllReady())

	roster.SetReady("c2", true)
	req.True(roster.AllReady())

	roster.SetReady("c1", false)
	req.False(roster.AllReady())
}

func TestRoster_Snapshot_Preserves_Insertion_Order(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	roster.Add("c3", "c", "C")
	roster.Add("c1", "a", "A")
	roster.Add("c2", "b", "B")
	roster.Remove("c1")

	snapshot := roster.Snapshot()
	req.Len(snapshot, 2)
	req.Equal(ConnectionID("c3"), snapshot[0].ConnectionID)
	req.Equal(ConnectionID("c2"), snapshot[1].ConnectionID)

	// Snapshot entries are copies, not views into the roster
	snapshot[0].Ready = true
	p, _ := roster.Get("c3")
	req.False(p.Ready)
}

// Replaying add/remove operations in any order that contains the true
// final set converges every replica to the same membership.
func TestRoster_Convergence_Under_Replay(t *testing.T) {
	req := require.New(t)

	type op struct {
		add bool
		id  ConnectionID
	}
	// Final truth: c1 and c3 present, c2 removed.
	orderings := [][]op{
		{{true, "c1"}, {true, "c2"}, {true, "c3"}, {false, "c2"}},
		{{true, "c2"}, {false, "c2"}, {true, "c3"}, {true, "c1"}, {true, "c3"}},
		{{false, "c2"}, {true, "c1"}, {true, "c1"}, {true, "c3"}, {true, "c2"}, {false, "c2"}},
	}

	for _, ops := range orderings {
		roster := NewRoster()
		for _, o := range ops {
			if o.add {
				roster.Add(o.id, Identity(o.id), string(o.id))
			} else {
				roster.Remove(o.id)
			}
		}
		snapshot := roster.Snapshot()
		ids := make(map[ConnectionID]bool, len(snapshot))
		for _, p := range snapshot {
			ids[p.ConnectionID] = true
		}
		req.Equal(map[ConnectionID]bool{"c1": true, "c3": true}, ids)
	}
}

func TestRoster_Reset_Replaces_Replica(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	roster.Add("stale", "x", "X")

	roster.Reset([]Participant{
		{ConnectionID: "c1", Identity: "a", DisplayName: "A", Ready: true},
		{ConnectionID: "c2", Identity: "b", DisplayName: "B"},
	})

	req.Equal(2, roster.Len())
	_, ok := roster.Get("stale")
	req.False(ok)
	p, ok := roster.Get("c1")
	req.True(ok)
	req.True(p.Ready)
}

func TestRoster_FindByIdentity_Scans(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	roster.Add("c1", "alice-id", "Alice")
	roster.Add("c2", "bob-id", "Bob")

	p, ok := roster.FindByIdentity("bob-id")
	req.True(ok)
	req.Equal(ConnectionID("c2"), p.ConnectionID)

	_, ok = roster.FindByIdentity("ghost-id")
	req.False(ok)
}
