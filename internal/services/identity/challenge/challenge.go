// Package challenge holds ephemeral, single-use ceremony state.
//
// Session-keyed records back authentication ceremonies and carry an intent
// resolved by the caller after verification. Member-keyed records back
// registration ceremonies, which are always addressed by member id; a member
// holds at most one in-flight registration at a time.
package challenge

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// DefaultTTL bounds how long an unconsumed challenge stays redeemable.
const DefaultTTL = 5 * time.Minute

// IntentKind tags the follow-up action bound to a challenge.
type IntentKind int

const (
	// IntentNone marks a bare verification with no follow-up.
	IntentNone IntentKind = iota
	// IntentLoginAs requests a session token pair for the member.
	IntentLoginAs
	// IntentApplyPasswordChange applies a pending password hash.
	IntentApplyPasswordChange
)

// Intent is the action bound to a challenge, resolved by the caller after
// a successful verification. Data only; no captured behavior.
type Intent struct {
	Kind            IntentKind
	MemberID        string
	NewPasswordHash string
}

// Record is one session-keyed authentication challenge.
type Record struct {
	SessionData webauthn.SessionData
	Intent      Intent
	CreatedAt   time.Time
}

// Registration is one member-keyed in-flight registration challenge.
type Registration struct {
	DeviceName  string
	SessionData webauthn.SessionData
	CreatedAt   time.Time
}

// Registry stores challenges for at most one consumption each.
type Registry struct {
	mu            sync.Mutex
	ttl           time.Duration
	now           func() time.Time
	sessions      map[string]Record
	registrations map[string]Registration
}

// NewRegistry builds a registry with the given challenge TTL; a
// non-positive ttl falls back to DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		ttl:           ttl,
		now:           time.Now,
		sessions:      make(map[string]Record),
		registrations: make(map[string]Registration),
	}
}

// SetClock overrides the registry clock, for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// PutSession stores a session-keyed challenge, replacing any previous
// record under the same key.
func (r *Registry) PutSession(key string, data webauthn.SessionData, intent Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[key] = Record{SessionData: data, Intent: intent, CreatedAt: r.now().UTC()}
}

// PopSession removes and returns the challenge under key. An expired
// record is removed and reported as absent.
func (r *Registry) PopSession(key string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[key]
	if !ok {
		return Record{}, false
	}
	delete(r.sessions, key)
	if r.now().UTC().Sub(rec.CreatedAt) > r.ttl {
		return Record{}, false
	}
	return rec, true
}

// PutRegistration stores the member's in-flight registration challenge,
// replacing any previous one; a later ceremony supersedes an abandoned one.
func (r *Registry) PutRegistration(memberID string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg.CreatedAt = r.now().UTC()
	r.registrations[memberID] = reg
}

// PopRegistration removes and returns the member's in-flight registration
// challenge. Expired records read as absent.
func (r *Registry) PopRegistration(memberID string) (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[memberID]
	if !ok {
		return Registration{}, false
	}
	delete(r.registrations, memberID)
	if r.now().UTC().Sub(reg.CreatedAt) > r.ttl {
		return Registration{}, false
	}
	return reg, true
}
