// Package admission runs the invitation-gated membership workflow:
// invitation-token issuance, temporary-member registration backed by a
// WebAuthn ceremony, and admin admit/deny.
package admission

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"

	apperrors "github.com/haven-sh/haven/internal/platform/errors"
	"github.com/haven-sh/haven/internal/services/identity/credential"
	"github.com/haven-sh/haven/internal/services/identity/member"
	"github.com/haven-sh/haven/internal/services/identity/passkey"
	"github.com/haven-sh/haven/internal/services/identity/store"
)

// ErrRegistrationClosed indicates the capacity policy refused a new
// invitation.
var ErrRegistrationClosed = apperrors.New(apperrors.CodeRegistrationClosed, "registration is closed")

// Service orchestrates the admission workflow.
type Service struct {
	members  *store.Store
	passkeys *passkey.Service
	cfg      Config
	newToken func() (string, error)
}

// New builds an admission service.
func New(members *store.Store, passkeys *passkey.Service, cfg Config) *Service {
	return &Service{
		members:  members,
		passkeys: passkeys,
		cfg:      cfg,
		newToken: newInvitationToken,
	}
}

// newInvitationToken returns a random 32-byte URL-safe token.
func newInvitationToken() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// IssueInvitation mints a single-use invitation token for issuerID.
// Refused when the capacity policy rejects the current member plus
// temp-member count.
func (s *Service) IssueInvitation(issuerID string) (string, error) {
	if _, err := s.members.Get(issuerID); err != nil {
		return "", err
	}
	if !s.cfg.AllowRegistration {
		return "", ErrRegistrationClosed
	}
	if s.cfg.MaxMembers > 0 && s.members.CountMembers()+s.members.CountTempMembers() >= s.cfg.MaxMembers {
		return "", ErrRegistrationClosed
	}
	token, err := s.newToken()
	if err != nil {
		return "", err
	}
	s.members.RegisterPreRequest(token, issuerID)
	return token, nil
}

// BeginTempRegistration redeems an invitation token, creates the temp
// member with a password credential, and starts its WebAuthn registration
// ceremony. Redemption consumes the token regardless of outcome; absent
// and expired tokens fail distinctly.
func (s *Service) BeginTempRegistration(origin, token, memberID, name, password, deviceName string) (*protocol.CredentialCreation, error) {
	issuerID, err := s.members.RedeemPreRequest(token)
	if err != nil {
		return nil, err
	}

	m, err := member.New(memberID, name)
	if err != nil {
		return nil, err
	}
	pw, err := credential.HashPassword(password)
	if err != nil {
		return nil, err
	}
	m.Auth.SetPassword(pw)

	tm := member.TempMember{Member: m, From: issuerID}
	added, err := s.members.AddTempIfAbsent(tm)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, store.ErrIDAlreadyUsed
	}

	options, err := s.passkeys.BeginRegistrationFor(origin, m, deviceName, false)
	if err != nil {
		// The invitation is spent; drop the half-created temp member so
		// the id does not stay claimed by a ceremony that never started.
		_, _ = s.members.RemoveTemp(m.ID)
		return nil, err
	}
	return options, nil
}

// FinishTempRegistration completes the temp member's WebAuthn ceremony
// and re-stores the still-temporary member.
func (s *Service) FinishTempRegistration(origin, memberID string, responseJSON []byte) (member.TempMember, error) {
	memberID, err := member.NormalizeID(memberID)
	if err != nil {
		return member.TempMember{}, err
	}
	tm, err := s.members.GetTemp(memberID)
	if err != nil {
		return member.TempMember{}, err
	}
	updated, err := s.passkeys.FinishRegistrationFor(origin, tm.Member, responseJSON)
	if err != nil {
		return member.TempMember{}, err
	}
	tm.Member = updated
	if err := s.members.UpsertTemp(tm); err != nil {
		return member.TempMember{}, err
	}
	return tm, nil
}

// Admit moves a temp member into the member table. Fails distinctly when
// no temp member exists and when the id was claimed by a real member
// since redemption.
func (s *Service) Admit(memberID string) (member.Member, error) {
	memberID, err := member.NormalizeID(memberID)
	if err != nil {
		return member.Member{}, err
	}
	return s.members.Promote(memberID)
}

// Deny discards a temp member. A second deny for the same id fails with
// the no-such-temp-member error.
func (s *Service) Deny(memberID string) error {
	memberID, err := member.NormalizeID(memberID)
	if err != nil {
		return err
	}
	removed, err := s.members.RemoveTemp(memberID)
	if err != nil {
		return err
	}
	if !removed {
		return store.ErrNoTempMember
	}
	return nil
}
