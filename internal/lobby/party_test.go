package lobby

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePartyHasSoleLeader(t *testing.T) {
	ps := NewPartyStore()
	p := ps.Create(PartyMember{ID: "s1", Name: "alice"})

	snap, ok := ps.Snapshot(p.Key)
	require.True(t, ok)
	require.Len(t, snap.Members, 1)
	assert.True(t, snap.Members[0].Leader)
	assert.Equal(t, PartyWaiting, snap.State)
	assert.True(t, snap.Autofill)
}

func TestLeavePartyDeletesWhenEmpty(t *testing.T) {
	ps := NewPartyStore()
	p := ps.Create(PartyMember{ID: "s1"})

	removed, deleted := ps.Leave(p.Key, "s1")
	assert.True(t, removed)
	assert.True(t, deleted)
	assert.Equal(t, 0, ps.Len())

	_, ok := ps.Snapshot(p.Key)
	assert.False(t, ok)
}

func TestLeavePartyUnknownMember(t *testing.T) {
	ps := NewPartyStore()
	p := ps.Create(PartyMember{ID: "s1"})

	removed, deleted := ps.Leave(p.Key, "nope")
	assert.False(t, removed)
	assert.False(t, deleted)
	assert.Equal(t, 1, ps.Len())
}

func TestUpdateSettingLeaderGate(t *testing.T) {
	ps := NewPartyStore()
	p := ps.Create(PartyMember{ID: "leader"})

	// Simulate an autofilled second member: not a leader.
	ps.mu.Lock()
	ps.parties[p.Key].Members = append(ps.parties[p.Key].Members, PartyMember{ID: "member"})
	ps.mu.Unlock()

	ok := ps.UpdateSetting(p.Key, "member", func(p *Party) { p.Region = "eu" })
	assert.False(t, ok, "non-leader must not mutate shared settings")

	ok = ps.UpdateSetting(p.Key, "leader", func(p *Party) { p.Region = "eu" })
	assert.True(t, ok)

	snap, _ := ps.Snapshot(p.Key)
	assert.Equal(t, "eu", snap.Region)
}

// The member list holds at most one entry per connection and the party exists
// iff the list is non-empty, for any interleaving of member flag updates and
// leaves.
func TestMembershipInvariantUnderInterleavings(t *testing.T) {
	ps := NewPartyStore()
	p := ps.Create(PartyMember{ID: "s0"})
	ps.mu.Lock()
	for i := 1; i < 4; i++ {
		ps.parties[p.Key].Members = append(ps.parties[p.Key].Members, PartyMember{ID: fmt.Sprintf("s%d", i)})
	}
	ps.mu.Unlock()

	ops := []func(id string){
		func(id string) {
			ps.UpdateMember(p.Key, id, ReadyPolicyObserved, func(m *PartyMember) { m.Ready = true })
		},
		func(id string) {
			ps.UpdateMember(p.Key, id, nil, func(m *PartyMember) { m.InRound = true })
		},
		func(id string) { ps.Leave(p.Key, id) },
	}

	for round, op := range ops {
		for i := 0; i < 4; i++ {
			op(fmt.Sprintf("s%d", i))

			snap, exists := ps.Snapshot(p.Key)
			if exists {
				seen := map[string]int{}
				for _, m := range snap.Members {
					seen[m.ID]++
				}
				for id, n := range seen {
					assert.Equal(t, 1, n, "round %d: duplicate member %s", round, id)
				}
				assert.NotEmpty(t, snap.Members, "registered party must have members")
			}
		}
	}

	_, exists := ps.Snapshot(p.Key)
	assert.False(t, exists, "party must be deleted once the last member left")
}

func TestReadyPolicies(t *testing.T) {
	p := &Party{Members: []PartyMember{
		{ID: "a", Ready: true},
		{ID: "b", Ready: false},
	}}

	assert.True(t, ReadyPolicyObserved(p, &p.Members[0]))
	assert.False(t, ReadyPolicyObserved(p, &p.Members[1]))

	assert.True(t, InRoundPolicyObserved(p, &p.Members[0]))
	assert.True(t, InRoundPolicyObserved(p, &p.Members[1]))

	assert.False(t, ReadyPolicyAllMembers(p, &p.Members[0]))
	p.Members[1].Ready = true
	assert.True(t, ReadyPolicyAllMembers(p, &p.Members[0]))
}

func TestHashAddrStableAndOpaque(t *testing.T) {
	h1 := HashAddr("203.0.113.9:51100")
	h2 := HashAddr("203.0.113.9:51100")
	assert.Equal(t, h1, h2)
	assert.NotContains(t, h1, "203.0.113.9")
	assert.NotEqual(t, h1, HashAddr("203.0.113.10:51100"))
}
