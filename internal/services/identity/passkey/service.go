// Package passkey orchestrates WebAuthn registration and authentication
// ceremonies against the member store. Cryptographic option generation and
// verification are delegated to the go-webauthn library; this package owns
// challenge bookkeeping, device naming, and credential persistence.
package passkey

import (
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	apperrors "github.com/haven-sh/haven/internal/platform/errors"
	"github.com/haven-sh/haven/internal/platform/id"
	"github.com/haven-sh/haven/internal/services/identity/challenge"
	"github.com/haven-sh/haven/internal/services/identity/credential"
	"github.com/haven-sh/haven/internal/services/identity/member"
	"github.com/haven-sh/haven/internal/services/identity/store"
)

var (
	// ErrNoMatchingSession indicates the challenge was already consumed,
	// never existed, or the wrong key was supplied.
	ErrNoMatchingSession = apperrors.New(apperrors.CodeNoMatchingSession, "no matching ceremony session")
	// ErrDeviceNameInUse indicates the device name is already registered.
	ErrDeviceNameInUse = apperrors.New(apperrors.CodeDeviceNameInUse, "device name is already registered")
	// ErrNoWebAuthnCredential indicates the member has no authenticator at all.
	ErrNoWebAuthnCredential = apperrors.New(apperrors.CodeNoWebAuthnCredential, "member has no webauthn credential")
	// ErrWrongRelyingPartyID indicates the member's authenticators belong
	// to a different relying party id than the one derived from the origin.
	ErrWrongRelyingPartyID = apperrors.New(apperrors.CodeWrongRelyingPartyID, "no authenticator for this relying party")
)

// Service runs WebAuthn ceremonies for members.
type Service struct {
	members    *store.Store
	challenges *challenge.Registry
	provider   *Provider
	clock      func() time.Time
	newKey     func() (string, error)
}

// New builds a ceremony service around the member store.
func New(members *store.Store, challenges *challenge.Registry, cfg Config) *Service {
	return &Service{
		members:    members,
		challenges: challenges,
		provider:   NewProvider(cfg),
		clock:      time.Now,
		newKey:     id.NewID,
	}
}

// SetClock overrides the service clock, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.clock = now
}

// RPID returns the relying party id the service derives from origin.
func (s *Service) RPID(origin string) (string, error) {
	return s.provider.RPID(origin)
}

// ceremonyUser adapts a member to the webauthn.User interface with a
// caller-chosen credential subset.
type ceremonyUser struct {
	m           member.Member
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.m.ID)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.m.ID
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.m.Name
}

func (u *ceremonyUser) WebAuthnIcon() string {
	return ""
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// BeginRegistrationFor starts a registration ceremony against a member
// value without persisting anything. The returned options carry the
// challenge; the in-flight record is keyed by member id.
func (s *Service) BeginRegistrationFor(origin string, m member.Member, deviceName string, force bool) (*protocol.CredentialCreation, error) {
	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		return nil, apperrors.New(apperrors.CodeInvalidID, "device name is required")
	}
	web, rpID, err := s.provider.For(origin)
	if err != nil {
		return nil, err
	}

	var existing []webauthn.Credential
	if item, ok := m.Auth.Item(rpID); ok {
		if item.Has(deviceName) {
			return nil, ErrDeviceNameInUse
		}
		if !force {
			existing = item.Credentials(nil)
		}
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(existing) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(existing).CredentialDescriptors()))
	}

	creation, session, err := web.BeginRegistration(&ceremonyUser{m: m, credentials: existing}, options...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFailedAuth, "begin registration", err)
	}

	s.challenges.PutRegistration(m.ID, challenge.Registration{
		DeviceName:  deviceName,
		SessionData: *session,
	})
	return creation, nil
}

// FinishRegistrationFor verifies a registration response against the
// member's in-flight challenge and returns the member with the new
// authenticator attached and enabled. The in-flight challenge is cleared
// whether or not verification succeeds; persistence is the caller's.
func (s *Service) FinishRegistrationFor(origin string, m member.Member, responseJSON []byte) (member.Member, error) {
	reg, ok := s.challenges.PopRegistration(m.ID)
	if !ok {
		return member.Member{}, ErrNoMatchingSession
	}
	web, rpID, err := s.provider.For(origin)
	if err != nil {
		return member.Member{}, err
	}
	if item, ok := m.Auth.Item(rpID); ok && item.Has(reg.DeviceName) {
		return member.Member{}, ErrDeviceNameInUse
	}

	parsed, err := protocol.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return member.Member{}, apperrors.Wrap(apperrors.CodeFailedAuth, "parse registration response", err)
	}
	cred, err := web.CreateCredential(&ceremonyUser{m: m}, reg.SessionData, parsed)
	if err != nil {
		return member.Member{}, apperrors.Wrap(apperrors.CodeFailedAuth, "verify registration response", err)
	}

	item := m.Auth.EnsureItem(rpID)
	item.Set(reg.DeviceName, credential.Authenticator{
		Credential: *cred,
		CreatedAt:  s.clock().UTC(),
	})
	item.Enable(reg.DeviceName)
	return m, nil
}

// BeginRegistration starts a registration ceremony for a stored member.
func (s *Service) BeginRegistration(origin, memberID, deviceName string, force bool) (*protocol.CredentialCreation, error) {
	m, err := s.members.Get(memberID)
	if err != nil {
		return nil, err
	}
	return s.BeginRegistrationFor(origin, m, deviceName, force)
}

// FinishRegistration completes a registration ceremony for a stored member
// and persists the updated credential set.
func (s *Service) FinishRegistration(origin, memberID string, responseJSON []byte) (member.Member, error) {
	m, err := s.members.Get(memberID)
	if err != nil {
		return member.Member{}, err
	}
	updated, err := s.FinishRegistrationFor(origin, m, responseJSON)
	if err != nil {
		return member.Member{}, err
	}
	if err := s.members.Upsert(updated); err != nil {
		return member.Member{}, err
	}
	return updated, nil
}

// BeginLogin starts an authentication ceremony. With a member id the
// allowed credentials are the member's effective allowed devices,
// optionally narrowed to deviceNames; with an empty member id a
// discoverable (username-less) ceremony starts. The challenge is stored
// under a fresh session key bound to intent.
func (s *Service) BeginLogin(origin, memberID string, deviceNames []string, intent challenge.Intent) (*protocol.CredentialAssertion, string, error) {
	key, err := s.newKey()
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeUnknown, "generate session key", err)
	}
	assertion, err := s.beginLogin(origin, memberID, deviceNames, key, intent)
	if err != nil {
		return nil, "", err
	}
	return assertion, key, nil
}

// BeginStepUp starts an authentication ceremony keyed by the member id
// itself, for flows that re-address the ceremony by member rather than by
// an opaque session key.
func (s *Service) BeginStepUp(origin, memberID string, deviceNames []string, intent challenge.Intent) (*protocol.CredentialAssertion, error) {
	return s.beginLogin(origin, memberID, deviceNames, memberID, intent)
}

func (s *Service) beginLogin(origin, memberID string, deviceNames []string, key string, intent challenge.Intent) (*protocol.CredentialAssertion, error) {
	web, rpID, err := s.provider.For(origin)
	if err != nil {
		return nil, err
	}

	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
	)
	if memberID == "" {
		assertion, session, err = web.BeginDiscoverableLogin()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeFailedAuth, "begin discoverable login", err)
		}
	} else {
		m, err := s.members.Get(memberID)
		if err != nil {
			return nil, err
		}
		item, err := loginItem(m, rpID)
		if err != nil {
			return nil, err
		}
		allowed := filterNames(item.EffectiveAllowedNames(), deviceNames)
		if len(allowed) == 0 {
			return nil, ErrNoWebAuthnCredential
		}
		user := &ceremonyUser{m: m, credentials: item.Credentials(allowed)}
		assertion, session, err = web.BeginLogin(user, webauthn.WithAllowedCredentials(item.Descriptors(allowed)))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeFailedAuth, "begin login", err)
		}
	}

	s.challenges.PutSession(key, *session, intent)
	return assertion, nil
}

// FinishLogin verifies an authentication response against the challenge
// stored under sessionKey, falling back to the member-keyed record when
// the key misses. On success the stored signature counter advances, the
// member persists, and the challenge's bound intent is returned for the
// caller to resolve.
func (s *Service) FinishLogin(origin, memberID string, responseJSON []byte, sessionKey string) (challenge.Intent, member.Member, error) {
	rec, ok := s.challenges.PopSession(sessionKey)
	if !ok && memberID != "" {
		rec, ok = s.challenges.PopSession(memberID)
	}
	if !ok {
		return challenge.Intent{}, member.Member{}, ErrNoMatchingSession
	}

	web, rpID, err := s.provider.For(origin)
	if err != nil {
		return challenge.Intent{}, member.Member{}, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return challenge.Intent{}, member.Member{}, apperrors.Wrap(apperrors.CodeFailedAuth, "parse login response", err)
	}

	var (
		m         member.Member
		validated *webauthn.Credential
	)
	if memberID == "" {
		user, cred, err := web.ValidatePasskeyLogin(s.discoverableHandler(rpID), rec.SessionData, parsed)
		if err != nil {
			return challenge.Intent{}, member.Member{}, apperrors.Wrap(apperrors.CodeFailedAuth, "verify discoverable login", err)
		}
		resolved, ok := user.(*ceremonyUser)
		if !ok {
			return challenge.Intent{}, member.Member{}, apperrors.New(apperrors.CodeFailedAuth, "unexpected ceremony user type")
		}
		m = resolved.m
		validated = cred
	} else {
		m, err = s.members.Get(memberID)
		if err != nil {
			return challenge.Intent{}, member.Member{}, err
		}
		item, err := loginItem(m, rpID)
		if err != nil {
			return challenge.Intent{}, member.Member{}, err
		}
		user := &ceremonyUser{m: m, credentials: item.Credentials(nil)}
		validated, err = web.ValidateLogin(user, rec.SessionData, parsed)
		if err != nil {
			return challenge.Intent{}, member.Member{}, apperrors.Wrap(apperrors.CodeFailedAuth, "verify login", err)
		}
	}
	if validated.Authenticator.CloneWarning {
		return challenge.Intent{}, member.Member{}, apperrors.New(apperrors.CodeFailedAuth, "authenticator counter did not advance")
	}

	item, err := loginItem(m, rpID)
	if err != nil {
		return challenge.Intent{}, member.Member{}, err
	}
	name, ok := item.FindByCredentialID(validated.ID)
	if !ok {
		return challenge.Intent{}, member.Member{}, apperrors.New(apperrors.CodeFailedAuth, "credential does not belong to member")
	}
	stored, _ := item.Get(name)
	stored.Credential.Authenticator.SignCount = validated.Authenticator.SignCount
	item.Set(name, stored)
	if err := s.members.Upsert(m); err != nil {
		return challenge.Intent{}, member.Member{}, err
	}
	return rec.Intent, m, nil
}

func (s *Service) discoverableHandler(rpID string) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		m, err := s.members.Get(string(userHandle))
		if err != nil {
			return nil, err
		}
		item, err := loginItem(m, rpID)
		if err != nil {
			return nil, err
		}
		return &ceremonyUser{m: m, credentials: item.Credentials(nil)}, nil
	}
}

// loginItem resolves a member's WebAuthn item for the relying party,
// distinguishing "no authenticator at all" from "authenticators for a
// different relying party".
func loginItem(m member.Member, rpID string) (*credential.WebAuthnItem, error) {
	if !m.Auth.HasWebAuthn() {
		return nil, ErrNoWebAuthnCredential
	}
	item, ok := m.Auth.Item(rpID)
	if !ok || item.Empty() {
		return nil, ErrWrongRelyingPartyID
	}
	return item, nil
}

// filterNames narrows allowed to the requested names, preserving the
// allowed order. An empty request keeps the full allowed set.
func filterNames(allowed, requested []string) []string {
	if len(requested) == 0 {
		return allowed
	}
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}
	filtered := make([]string, 0, len(allowed))
	for _, name := range allowed {
		if want[name] {
			filtered = append(filtered, name)
		}
	}
	return filtered
}
