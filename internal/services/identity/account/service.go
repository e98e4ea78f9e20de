// Package account exposes the member-facing operations built on the
// ceremony orchestrator and token manager: password login, WebAuthn
// login, step-up password change, device management, and member
// administration.
package account

import (
	"github.com/go-webauthn/webauthn/protocol"

	apperrors "github.com/haven-sh/haven/internal/platform/errors"
	"github.com/haven-sh/haven/internal/services/identity/challenge"
	"github.com/haven-sh/haven/internal/services/identity/credential"
	"github.com/haven-sh/haven/internal/services/identity/member"
	"github.com/haven-sh/haven/internal/services/identity/passkey"
	"github.com/haven-sh/haven/internal/services/identity/store"
	"github.com/haven-sh/haven/internal/services/identity/token"
)

var (
	// ErrFailedAuth indicates a password mismatch.
	ErrFailedAuth = apperrors.New(apperrors.CodeFailedAuth, "authentication failed")
	// ErrNoPasswordCredential indicates the member has no password set.
	ErrNoPasswordCredential = apperrors.New(apperrors.CodeNoPasswordCredential, "member has no password credential")
	// ErrWebAuthnAlreadyEnabled indicates password login was attempted for
	// an origin whose relying party already holds an authenticator, where
	// WebAuthn is therefore mandatory.
	ErrWebAuthnAlreadyEnabled = apperrors.New(apperrors.CodeWebAuthnAlreadyEnabled, "webauthn is enabled for this member")
)

// Service wires the member store, ceremony orchestrator, and token
// manager into account-level operations.
type Service struct {
	members  *store.Store
	passkeys *passkey.Service
	tokens   *token.Manager
}

// New builds an account service.
func New(members *store.Store, passkeys *passkey.Service, tokens *token.Manager) *Service {
	return &Service{members: members, passkeys: passkeys, tokens: tokens}
}

// LoginResult is the outcome of a finished authentication ceremony.
// Tokens is set only when the ceremony's bound intent was a login.
type LoginResult struct {
	Member member.Member
	Tokens *token.Pair
}

// PasswordLogin authenticates a member by password and issues a session
// pair. Refused outright once the member has any authenticator: for the
// origin's own relying party WebAuthn is mandatory, and authenticators
// held only under other relying party ids fail as a relying-party
// mismatch rather than opening a password side door.
func (s *Service) PasswordLogin(origin, memberID, password string) (token.Pair, error) {
	m, err := s.members.Get(memberID)
	if err != nil {
		return token.Pair{}, err
	}
	rpID, err := s.passkeys.RPID(origin)
	if err != nil {
		return token.Pair{}, err
	}
	if item, ok := m.Auth.Item(rpID); ok && !item.Empty() {
		return token.Pair{}, ErrWebAuthnAlreadyEnabled
	}
	if m.Auth.HasWebAuthn() {
		return token.Pair{}, passkey.ErrWrongRelyingPartyID
	}
	if m.Auth.Password == nil {
		return token.Pair{}, ErrNoPasswordCredential
	}
	if !m.Auth.Password.Verify(password) {
		return token.Pair{}, ErrFailedAuth
	}
	return s.tokens.Issue(m.ID)
}

// BeginWebAuthnLogin starts an authentication ceremony bound to a login
// intent. An empty member id starts a discoverable ceremony.
func (s *Service) BeginWebAuthnLogin(origin, memberID string, deviceNames []string) (*protocol.CredentialAssertion, string, error) {
	intent := challenge.Intent{Kind: challenge.IntentLoginAs, MemberID: memberID}
	return s.passkeys.BeginLogin(origin, memberID, deviceNames, intent)
}

// FinishWebAuthnLogin verifies the authentication response and resolves
// the intent bound to its challenge: a login intent issues a token pair,
// a pending password change is applied and persisted without issuing
// tokens.
func (s *Service) FinishWebAuthnLogin(origin, memberID string, responseJSON []byte, sessionKey string) (LoginResult, error) {
	intent, m, err := s.passkeys.FinishLogin(origin, memberID, responseJSON, sessionKey)
	if err != nil {
		return LoginResult{}, err
	}

	switch intent.Kind {
	case challenge.IntentLoginAs:
		pair, err := s.tokens.Issue(m.ID)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Member: m, Tokens: &pair}, nil
	case challenge.IntentApplyPasswordChange:
		if intent.MemberID != m.ID {
			return LoginResult{}, apperrors.New(apperrors.CodeFailedAuth, "ceremony member does not match pending change")
		}
		m.Auth.SetPassword(credential.Password{Hash: intent.NewPasswordHash})
		if err := s.members.Upsert(m); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Member: m}, nil
	default:
		return LoginResult{Member: m}, nil
	}
}

// BeginPasswordChange hashes the new password and starts a step-up
// ceremony carrying it. The change applies only when the ceremony
// finishes successfully; the challenge is keyed by the member id.
func (s *Service) BeginPasswordChange(origin, memberID, newPassword string) (*protocol.CredentialAssertion, error) {
	if _, err := s.members.Get(memberID); err != nil {
		return nil, err
	}
	pw, err := credential.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	intent := challenge.Intent{
		Kind:            challenge.IntentApplyPasswordChange,
		MemberID:        memberID,
		NewPasswordHash: pw.Hash,
	}
	return s.passkeys.BeginStepUp(origin, memberID, nil, intent)
}

// ChangePassword replaces the password directly for members with no
// authenticator at all, after verifying the current one. Members with an
// authenticator must use the step-up flow.
func (s *Service) ChangePassword(memberID, currentPassword, newPassword string) error {
	m, err := s.members.Get(memberID)
	if err != nil {
		return err
	}
	if m.Auth.HasWebAuthn() {
		return ErrWebAuthnAlreadyEnabled
	}
	if m.Auth.Password == nil {
		return ErrNoPasswordCredential
	}
	if !m.Auth.Password.Verify(currentPassword) {
		return ErrFailedAuth
	}
	pw, err := credential.HashPassword(newPassword)
	if err != nil {
		return err
	}
	m.Auth.SetPassword(pw)
	return s.members.Upsert(m)
}

// Device is one registered authenticator as presented to the member.
type Device struct {
	Name    string
	Enabled bool
}

// ListDevices returns the member's devices for the origin's relying
// party in registration order. A member with no authenticator for this
// relying party gets an empty list, not an error.
func (s *Service) ListDevices(origin, memberID string) ([]Device, error) {
	m, err := s.members.Get(memberID)
	if err != nil {
		return nil, err
	}
	rpID, err := s.passkeys.RPID(origin)
	if err != nil {
		return nil, err
	}
	item, ok := m.Auth.Item(rpID)
	if !ok {
		return nil, nil
	}

	enabled := make(map[string]bool, len(item.EnableDevices))
	for _, name := range item.EnableDevices {
		enabled[name] = true
	}
	names := item.Names()
	devices := make([]Device, 0, len(names))
	for _, name := range names {
		devices = append(devices, Device{Name: name, Enabled: enabled[name]})
	}
	return devices, nil
}

// EnableDevice adds a device name to the member's enabled set.
func (s *Service) EnableDevice(origin, memberID, deviceName string) error {
	return s.updateItem(origin, memberID, func(item *credential.WebAuthnItem) error {
		if !item.Enable(deviceName) {
			return passkey.ErrNoWebAuthnCredential
		}
		return nil
	})
}

// DisableDevice removes a device name from the member's enabled set.
// Disabling the last enabled device falls the login path back to the
// first-registered authenticator.
func (s *Service) DisableDevice(origin, memberID, deviceName string) error {
	return s.updateItem(origin, memberID, func(item *credential.WebAuthnItem) error {
		if !item.Has(deviceName) {
			return passkey.ErrNoWebAuthnCredential
		}
		item.Disable(deviceName)
		return nil
	})
}

func (s *Service) updateItem(origin, memberID string, mutate func(*credential.WebAuthnItem) error) error {
	m, err := s.members.Get(memberID)
	if err != nil {
		return err
	}
	rpID, err := s.passkeys.RPID(origin)
	if err != nil {
		return err
	}
	item, ok := m.Auth.Item(rpID)
	if !ok {
		return passkey.ErrWrongRelyingPartyID
	}
	if err := mutate(item); err != nil {
		return err
	}
	return s.members.Upsert(m)
}

// DeleteDevice removes a registered authenticator, collapsing empty
// credential containers.
func (s *Service) DeleteDevice(origin, memberID, deviceName string) error {
	m, err := s.members.Get(memberID)
	if err != nil {
		return err
	}
	rpID, err := s.passkeys.RPID(origin)
	if err != nil {
		return err
	}
	if !m.Auth.DeleteAuthenticator(rpID, deviceName) {
		return passkey.ErrNoWebAuthnCredential
	}
	return s.members.Upsert(m)
}

// RegisterDirect creates a member outright, bypassing admission. Used by
// administrative tooling and first-run bootstrap. Fails when the id is
// already claimed by a member or temp member.
func (s *Service) RegisterDirect(memberID, name, password string, admin bool) (member.Member, error) {
	m, err := member.New(memberID, name)
	if err != nil {
		return member.Member{}, err
	}
	pw, err := credential.HashPassword(password)
	if err != nil {
		return member.Member{}, err
	}
	m.Auth.SetPassword(pw)
	m.Flags.Admin = admin

	added, err := s.members.AddIfAbsent(m)
	if err != nil {
		return member.Member{}, err
	}
	if !added {
		return member.Member{}, store.ErrIDAlreadyUsed
	}
	return m, nil
}

// RemoveMember deletes a member and revokes any live session.
func (s *Service) RemoveMember(memberID string) error {
	removed, err := s.members.Remove(memberID)
	if err != nil {
		return err
	}
	if !removed {
		return store.ErrNoMember
	}
	_, err = s.tokens.Revoke(memberID)
	return err
}

// Logout revokes the member's live session pair. Returns false when no
// session was live.
func (s *Service) Logout(memberID string) (bool, error) {
	return s.tokens.Revoke(memberID)
}
