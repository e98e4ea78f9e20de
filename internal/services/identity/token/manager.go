// Package token issues, verifies, refreshes, and revokes bearer session
// tokens. Access and refresh tokens are EdDSA-signed JWTs minted from
// distinct keys; the live-session table is the source of truth for whether
// a session is still valid, token expiry only bounds the damage of key or
// table loss.
package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haven-sh/haven/internal/platform/id"
)

const (
	purposeAccess  = "access"
	purposeRefresh = "refresh"
)

var (
	// ErrInvalidToken indicates a token whose signature, structure, or
	// claims do not verify.
	ErrInvalidToken = errors.New("token is invalid")
	// ErrExpiredToken indicates a structurally valid token past its expiry.
	ErrExpiredToken = errors.New("token is expired")
	// ErrNotLive indicates a verifiable token whose session was rotated
	// out or revoked.
	ErrNotLive = errors.New("session is not live")
)

// Pair is one member's access and refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Use string `json:"use"`
}

// Manager mints and verifies session token pairs.
type Manager struct {
	store      *Store
	cfg        Config
	accessKey  ed25519.PrivateKey
	refreshKey ed25519.PrivateKey
	clock      func() time.Time
	newJTI     func() (string, error)
}

// NewManager builds a manager, loading signing keys from the store or
// generating and persisting fresh ones on first run.
func NewManager(store *Store, cfg Config) (*Manager, error) {
	accessKey, err := loadOrCreateKey(store, purposeAccess)
	if err != nil {
		return nil, err
	}
	refreshKey, err := loadOrCreateKey(store, purposeRefresh)
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:      store,
		cfg:        cfg,
		accessKey:  accessKey,
		refreshKey: refreshKey,
		clock:      time.Now,
		newJTI:     id.NewID,
	}, nil
}

// SetClock overrides the manager clock, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.clock = now
}

func loadOrCreateKey(store *Store, purpose string) (ed25519.PrivateKey, error) {
	key, err := store.GetSigningKey(purpose)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	_, generated, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate %s signing key: %w", purpose, err)
	}
	if err := store.PutSigningKey(purpose, generated); err != nil {
		return nil, err
	}
	return generated, nil
}

// Issue mints a fresh token pair for a member, unconditionally replacing
// any live pair.
func (m *Manager) Issue(memberID string) (Pair, error) {
	now := m.clock().UTC()
	accessToken, err := m.mint(m.accessKey, purposeAccess, memberID, now, m.cfg.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refreshToken, err := m.mint(m.refreshKey, purposeRefresh, memberID, now, m.cfg.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	session := Session{
		MemberID:     memberID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     now,
	}
	if err := m.store.PutSession(session); err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (m *Manager) mint(key ed25519.PrivateKey, use, memberID string, now time.Time, ttl time.Duration) (string, error) {
	jti, err := m.newJTI()
	if err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   memberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Use: use,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, nil
}

// Verify checks an access token's signature and expiry and returns the
// member id it was issued for.
func (m *Manager) Verify(accessToken string) (string, error) {
	claims, err := m.parse(accessToken, m.accessKey, purposeAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (m *Manager) parse(tokenString string, key ed25519.PrivateKey, use string) (*sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return key.Public(), nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithTimeFunc(func() time.Time { return m.clock().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.Use != use || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// Refresh rotates a token pair. The presented refresh token must both
// verify and match the currently-live refresh token for its member, which
// rejects replay of a rotated-out token.
func (m *Manager) Refresh(refreshToken string) (Pair, error) {
	claims, err := m.parse(refreshToken, m.refreshKey, purposeRefresh)
	if err != nil {
		return Pair{}, err
	}
	session, err := m.store.GetSession(claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Pair{}, ErrNotLive
		}
		return Pair{}, err
	}
	if session.RefreshToken != refreshToken {
		return Pair{}, ErrNotLive
	}
	if _, err := m.store.DeleteSession(claims.Subject); err != nil {
		return Pair{}, err
	}
	return m.Issue(claims.Subject)
}

// Revoke drops the live session for a member. Returns false when no
// session was live.
func (m *Manager) Revoke(memberID string) (bool, error) {
	return m.store.DeleteSession(memberID)
}

// IsLive reports whether an access token belongs to the member's
// currently-live pair.
func (m *Manager) IsLive(accessToken string) (string, error) {
	memberID, err := m.Verify(accessToken)
	if err != nil {
		return "", err
	}
	session, err := m.store.GetSession(memberID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotLive
		}
		return "", err
	}
	if session.AccessToken != accessToken {
		return "", ErrNotLive
	}
	return memberID, nil
}
