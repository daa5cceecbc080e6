// Package lobby holds the in-process state of the lobby gateway: connected
// sessions, the login state machine, and matchmaking parties.
package lobby

import (
	"log"
	"sync"

	"github.com/zrps/gateway/internal/models"
)

// LoginState tracks where a session is in the login flow. It only moves
// forward, except for logout/disconnect which resets to Anonymous.
type LoginState int

const (
	Anonymous LoginState = iota
	Authenticating
	Authenticated
)

// Session is one connected lobby client. A Session is created on connect and
// destroyed on disconnect; its User is attached only after a successful login
// lookup.
type Session struct {
	ID string

	// OutChan carries encoded frames to the connection's write pump.
	OutChan chan string
	// Cancel stops the goroutines tied to this connection.
	Cancel func()

	mu       sync.Mutex
	state    LoginState
	platform string
	version  string
	name     string
	user     *models.User
	partyKey string
	ready    bool
	inRound  bool
}

// NewSession builds a session in the Anonymous state.
func NewSession(id string, cancel func()) *Session {
	return &Session{
		ID:      id,
		OutChan: make(chan string, 16),
		Cancel:  cancel,
	}
}

// Send pushes an already-encoded frame onto the session's outbound channel
// without blocking. Frames to a stalled or closed connection are dropped; the
// store remains the source of truth for anything that matters.
func (s *Session) Send(frame string) {
	select {
	case s.OutChan <- frame:
	default:
		log.Printf("session %s: outbound channel full or closed, dropped frame", s.ID)
	}
}

// State returns the current login state.
func (s *Session) State() LoginState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginLogin transitions Anonymous/Authenticated -> Authenticating. It
// reports false when a login is already in flight, which the caller must
// treat as a protocol violation and close the connection (anti-replay guard).
func (s *Session) BeginLogin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticating {
		return false
	}
	s.state = Authenticating
	return true
}

// CompleteLogin attaches the resolved user record and marks the session
// Authenticated.
func (s *Session) CompleteLogin(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Authenticated
	s.user = u
}

// FailLogin reverts an in-flight login to Anonymous. Login simply does not
// complete; no error frame is owed to the client.
func (s *Session) FailLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticating {
		s.state = Anonymous
	}
}

// Logout detaches the user record and resets the state machine. The detached
// user is returned so the caller can run the presence fan-out.
func (s *Session) Logout() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user
	s.user = nil
	s.state = Anonymous
	return u
}

// User returns the attached user record, nil while not Authenticated.
func (s *Session) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// UserID returns the attached user's id, or 0 when no user is attached.
func (s *Session) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return 0
	}
	return s.user.ID
}

func (s *Session) SetPlatform(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platform = p
}

func (s *Session) Platform() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platform
}

func (s *Session) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

func (s *Session) SetName(n string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = n
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// IsMobile reports whether the session's platform is a handheld one.
func (s *Session) IsMobile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platform == "android" || s.platform == "ios"
}

func (s *Session) SetPartyKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partyKey = key
}

func (s *Session) PartyKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partyKey
}

func (s *Session) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Session) SetInRound(inRound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inRound = inRound
}
