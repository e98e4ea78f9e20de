// Package store owns the member, temp-member, and invitation tables.
//
// All tables live in memory and the member tables are rewritten to a single
// JSON document on every mutation. A write failure is reported to the caller
// but does not roll back the in-memory mutation; memory stays the source of
// truth until the next successful save.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/haven-sh/haven/internal/platform/errors"
	"github.com/haven-sh/haven/internal/platform/storage/jsondoc"
	"github.com/haven-sh/haven/internal/services/identity/member"
)

// PreRequestTTL is how long an invitation token stays redeemable.
const PreRequestTTL = 30 * time.Minute

var (
	// ErrNoMember indicates the referenced id has no member record.
	ErrNoMember = apperrors.New(apperrors.CodeNoMember, "no such member")
	// ErrNoTempMember indicates the referenced id has no temp member record.
	ErrNoTempMember = apperrors.New(apperrors.CodeNoMember, "no such temp member")
	// ErrIDAlreadyUsed indicates an id collision with a live member.
	ErrIDAlreadyUsed = apperrors.New(apperrors.CodeIDAlreadyUsed, "member id is already used")
	// ErrNoSuchInvitation indicates the invitation token is absent.
	ErrNoSuchInvitation = apperrors.New(apperrors.CodeNoSuchInvitation, "no such invitation")
	// ErrInvitationExpired indicates the invitation token was present but
	// past its redemption window. The token is removed either way.
	ErrInvitationExpired = apperrors.New(apperrors.CodeInvitationExpired, "invitation is expired")
)

type preRequest struct {
	IssuerID  string
	CreatedAt time.Time
}

// Store is the in-memory member table set with JSON document persistence.
type Store struct {
	path string
	now  func() time.Time

	// mu guards members and temp together: the cross-table uniqueness
	// invariant makes check-and-insert span both tables.
	mu      sync.Mutex
	members map[string]member.Member
	temp    map[string]member.TempMember

	preMu   sync.Mutex
	prereqs map[string]preRequest
}

type memberDoc struct {
	Members     map[string]member.Member     `json:"members"`
	TempMembers map[string]member.TempMember `json:"tempMembers,omitempty"`
}

// Open loads the member document at path, creating an empty store when the
// document does not exist yet.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	s := &Store{
		path:    path,
		now:     time.Now,
		members: make(map[string]member.Member),
		temp:    make(map[string]member.TempMember),
		prereqs: make(map[string]preRequest),
	}

	var doc memberDoc
	if err := jsondoc.Load(path, &doc); err != nil {
		if !errors.Is(err, jsondoc.ErrNotExist) {
			return nil, fmt.Errorf("load member document: %w", err)
		}
		return s, nil
	}
	for id, m := range doc.Members {
		m.ID = id
		s.members[id] = m
	}
	for id, tm := range doc.TempMembers {
		tm.ID = id
		s.temp[id] = tm
	}
	return s, nil
}

// SetClock overrides the store clock, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// persistLocked rewrites the whole member document. Callers hold mu.
func (s *Store) persistLocked() error {
	doc := memberDoc{
		Members:     make(map[string]member.Member, len(s.members)),
		TempMembers: make(map[string]member.TempMember, len(s.temp)),
	}
	for id, m := range s.members {
		doc.Members[id] = m
	}
	for id, tm := range s.temp {
		doc.TempMembers[id] = tm
	}
	if err := jsondoc.Save(s.path, doc); err != nil {
		return fmt.Errorf("persist member document: %w", err)
	}
	return nil
}

// Get returns the member with the given id.
func (s *Store) Get(id string) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return member.Member{}, ErrNoMember
	}
	return m, nil
}

// Upsert stores a member and persists the table immediately.
func (s *Store) Upsert(m member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
	return s.persistLocked()
}

// AddIfAbsent inserts a member only when its id collides with no live
// member or temp member. The check and insert are a single atomic step.
func (s *Store) AddIfAbsent(m member.Member) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.ID]; ok {
		return false, nil
	}
	if _, ok := s.temp[m.ID]; ok {
		return false, nil
	}
	s.members[m.ID] = m
	return true, s.persistLocked()
}

// Remove deletes a member. Returns false when the id has no record.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return false, nil
	}
	delete(s.members, id)
	return true, s.persistLocked()
}

// CountMembers returns the number of live members.
func (s *Store) CountMembers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// CountTempMembers returns the number of members pending admission.
func (s *Store) CountTempMembers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.temp)
}

// ListMembers returns members whose id contains idFilter, ordered by id.
// An empty filter returns everything.
func (s *Store) ListMembers(idFilter string) []member.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]member.Member, 0, len(s.members))
	for id, m := range s.members {
		if idFilter != "" && !strings.Contains(id, idFilter) {
			continue
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// GetTemp returns the temp member with the given id.
func (s *Store) GetTemp(id string) (member.TempMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.temp[id]
	if !ok {
		return member.TempMember{}, ErrNoTempMember
	}
	return tm, nil
}

// UpsertTemp stores a temp member and persists the table immediately.
func (s *Store) UpsertTemp(tm member.TempMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temp[tm.ID] = tm
	return s.persistLocked()
}

// AddTempIfAbsent inserts a temp member only when its id collides with no
// live member or temp member.
func (s *Store) AddTempIfAbsent(tm member.TempMember) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[tm.ID]; ok {
		return false, nil
	}
	if _, ok := s.temp[tm.ID]; ok {
		return false, nil
	}
	s.temp[tm.ID] = tm
	return true, s.persistLocked()
}

// RemoveTemp deletes a temp member. Returns false when absent.
func (s *Store) RemoveTemp(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.temp[id]; !ok {
		return false, nil
	}
	delete(s.temp, id)
	return true, s.persistLocked()
}

// Promote moves a temp member into the member table under the same id.
// Fails with ErrNoTempMember when no temp member exists, and with
// ErrIDAlreadyUsed when the id was claimed by a real member since
// redemption. The move is atomic: no state where both records exist is
// observable.
func (s *Store) Promote(id string) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.temp[id]
	if !ok {
		return member.Member{}, ErrNoTempMember
	}
	if _, ok := s.members[id]; ok {
		return member.Member{}, ErrIDAlreadyUsed
	}
	delete(s.temp, id)
	s.members[id] = tm.Member
	return tm.Member, s.persistLocked()
}

// RegisterPreRequest stores an invitation token for issuerID and prunes
// every expired token as a side effect. Pruning here bounds table growth
// without a background sweeper.
func (s *Store) RegisterPreRequest(token, issuerID string) {
	now := s.now().UTC()
	s.preMu.Lock()
	defer s.preMu.Unlock()
	for existing, pr := range s.prereqs {
		if now.Sub(pr.CreatedAt) > PreRequestTTL {
			delete(s.prereqs, existing)
		}
	}
	s.prereqs[token] = preRequest{IssuerID: issuerID, CreatedAt: now}
}

// RedeemPreRequest removes the token and returns its issuer id. The token
// is deleted before the expiry check so a single redemption attempt
// consumes it regardless of outcome; keep this order.
func (s *Store) RedeemPreRequest(token string) (string, error) {
	now := s.now().UTC()
	s.preMu.Lock()
	defer s.preMu.Unlock()
	pr, ok := s.prereqs[token]
	if !ok {
		return "", ErrNoSuchInvitation
	}
	delete(s.prereqs, token)
	if now.Sub(pr.CreatedAt) > PreRequestTTL {
		return "", ErrInvitationExpired
	}
	return pr.IssuerID, nil
}

// CountPreRequests returns the number of stored invitation tokens.
func (s *Store) CountPreRequests() int {
	s.preMu.Lock()
	defer s.preMu.Unlock()
	return len(s.prereqs)
}
