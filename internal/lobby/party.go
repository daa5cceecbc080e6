package lobby

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Party lifecycle states. The cycle is waiting -> matchmaking -> ingame ->
// waiting; the matchmaking pulse walks the whole cycle in one shot.
const (
	PartyWaiting     = "waiting"
	PartyMatchmaking = "matchmaking"
	PartyInGame      = "ingame"
)

// PartyMember is one session's membership record inside a party.
type PartyMember struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AddrHash string `json:"useIp"`
	IsMobile bool   `json:"isMobile"`
	InRound  bool   `json:"inRound"`
	Ready    bool   `json:"ready"`
	Leader   bool   `json:"leader"`
}

// Party is a matchmaking group. A non-empty party has exactly one leader and
// an empty party is deleted immediately.
type Party struct {
	Key      string        `json:"key"`
	Created  int64         `json:"created"`
	Updated  int64         `json:"updated"`
	State    string        `json:"state"`
	Autofill bool          `json:"autofill"`
	Platform string        `json:"platform,omitempty"`
	Version  string        `json:"version,omitempty"`
	Region   string        `json:"region,omitempty"`
	GameMode string        `json:"gameMode"`
	Metadata string        `json:"metadata"`
	Members  []PartyMember `json:"players"`
}

// member returns the entry for sessionID, or nil.
func (p *Party) member(sessionID string) *PartyMember {
	for i := range p.Members {
		if p.Members[i].ID == sessionID {
			return &p.Members[i]
		}
	}
	return nil
}

// ReadyPolicy decides whether a member's ready flag change starts the
// matchmaking pulse for that member's connection.
type ReadyPolicy func(p *Party, m *PartyMember) bool

// ReadyPolicyObserved keeps the shipped behavior: the pulse fires on the
// caller's own ready flag alone, without consulting the rest of the party.
// Stays the default pending a product decision on the corrected rule.
func ReadyPolicyObserved(p *Party, m *PartyMember) bool {
	return m.Ready
}

// InRoundPolicyObserved keeps the shipped in-round behavior: any successful
// membership write pulses, regardless of the flag value written.
func InRoundPolicyObserved(p *Party, m *PartyMember) bool {
	return true
}

// ReadyPolicyAllMembers is the corrected rule: every member must be ready.
func ReadyPolicyAllMembers(p *Party, m *PartyMember) bool {
	for i := range p.Members {
		if !p.Members[i].Ready {
			return false
		}
	}
	return len(p.Members) > 0
}

// PartyStore owns the live party table. Every mutation is a single atomic
// update of one entry under the store lock; callers never hold party pointers
// across their own suspension points.
type PartyStore struct {
	mu      sync.Mutex
	parties map[string]*Party
}

func NewPartyStore() *PartyStore {
	return &PartyStore{parties: make(map[string]*Party)}
}

// NewPartyKey generates a collision-resistant party key.
func NewPartyKey() string {
	return uuid.NewString()
}

// HashAddr hashes a member's origin address before it is stored on the
// membership record, so raw addresses never leave the gateway.
func HashAddr(addr string) string {
	sum := blake2b.Sum256([]byte(addr))
	return hex.EncodeToString(sum[:8])
}

// Create builds a waiting party with the given member as sole leader and
// registers it. The member's Leader flag is forced on.
func (ps *PartyStore) Create(m PartyMember) *Party {
	now := time.Now().UnixMilli()
	m.Leader = true
	p := &Party{
		Key:      NewPartyKey(),
		Created:  now,
		Updated:  now,
		State:    PartyWaiting,
		Autofill: true,
		GameMode: "Solo",
		Metadata: "{}",
		Members:  []PartyMember{m},
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.parties[p.Key] = p
	return p
}

// Snapshot returns a copy of the party, safe to marshal outside the lock.
func (ps *PartyStore) Snapshot(key string) (Party, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.parties[key]
	if !ok {
		return Party{}, false
	}
	cp := *p
	cp.Members = append([]PartyMember(nil), p.Members...)
	return cp, true
}

// UpdateSetting applies a leader-gated shared-setting mutation. It reports
// false when the party is gone or the caller is not the leader.
func (ps *PartyStore) UpdateSetting(key, sessionID string, apply func(*Party)) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.parties[key]
	if !ok {
		return false
	}
	m := p.member(sessionID)
	if m == nil || !m.Leader {
		return false
	}
	apply(p)
	p.Updated = time.Now().UnixMilli()
	return true
}

// UpdateMember applies a mutation to the caller's own membership record and
// returns a copy of the updated record plus whether the ready policy fired.
func (ps *PartyStore) UpdateMember(key, sessionID string, policy ReadyPolicy, apply func(*PartyMember)) (PartyMember, bool, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.parties[key]
	if !ok {
		return PartyMember{}, false, false
	}
	m := p.member(sessionID)
	if m == nil {
		return PartyMember{}, false, false
	}
	apply(m)
	p.Updated = time.Now().UnixMilli()
	pulse := policy != nil && policy(p, m)
	return *m, true, pulse
}

// CycleState walks the party through the full matchmaking cycle and leaves it
// waiting again. The intermediate states are what the pulse broadcasts.
func (ps *PartyStore) CycleState(key string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.parties[key]
	if !ok {
		return false
	}
	p.State = PartyWaiting
	p.Updated = time.Now().UnixMilli()
	return true
}

// Leave removes the session from the party. The party is deleted the moment
// it becomes empty. Reports (member removed, party deleted).
func (ps *PartyStore) Leave(key, sessionID string) (bool, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.parties[key]
	if !ok {
		return false, false
	}
	for i := range p.Members {
		if p.Members[i].ID == sessionID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			p.Updated = time.Now().UnixMilli()
			if len(p.Members) == 0 {
				delete(ps.parties, key)
				return true, true
			}
			return true, false
		}
	}
	return false, false
}

func (ps *PartyStore) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.parties)
}
