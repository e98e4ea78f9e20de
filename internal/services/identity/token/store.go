package token

import (
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/haven-sh/haven/internal/platform/errors"
	"github.com/haven-sh/haven/internal/platform/storage/sqlitemigrate"
	"github.com/haven-sh/haven/internal/services/identity/token/migrations"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Session is the live token pair for one member. The table holds at most
// one row per member; it, not token expiry, decides whether a session is
// still live.
type Session struct {
	MemberID     string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
}

// Store persists signing keys and live sessions over SQLite so restarts
// keep sessions alive.
type Store struct {
	sqlDB *sql.DB
}

// OpenStore opens the token SQLite store and applies bundled migrations.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetSigningKey loads the private key stored for purpose.
func (s *Store) GetSigningKey(purpose string) (ed25519.PrivateKey, error) {
	var raw []byte
	row := s.sqlDB.QueryRow("SELECT private_key FROM signing_keys WHERE purpose = ?", purpose)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get signing key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key for %s has %d bytes, want %d", purpose, len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}

// PutSigningKey stores the private key for purpose.
func (s *Store) PutSigningKey(purpose string, key ed25519.PrivateKey) error {
	_, err := s.sqlDB.Exec(
		"INSERT OR REPLACE INTO signing_keys (purpose, private_key, created_at) VALUES (?, ?, ?)",
		purpose, []byte(key), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put signing key: %w", err)
	}
	return nil
}

// PutSession stores the live token pair for a member, replacing any
// previous pair unconditionally.
func (s *Store) PutSession(session Session) error {
	_, err := s.sqlDB.Exec(
		"INSERT OR REPLACE INTO sessions (member_id, access_token, refresh_token, issued_at) VALUES (?, ?, ?, ?)",
		session.MemberID, session.AccessToken, session.RefreshToken, session.IssuedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession loads the live token pair for a member.
func (s *Store) GetSession(memberID string) (Session, error) {
	var session Session
	var issuedAt int64
	row := s.sqlDB.QueryRow(
		"SELECT member_id, access_token, refresh_token, issued_at FROM sessions WHERE member_id = ?",
		memberID,
	)
	if err := row.Scan(&session.MemberID, &session.AccessToken, &session.RefreshToken, &issuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	session.IssuedAt = time.UnixMilli(issuedAt).UTC()
	return session, nil
}

// DeleteSession removes the live token pair for a member. Returns false
// when no session was live.
func (s *Store) DeleteSession(memberID string) (bool, error) {
	result, err := s.sqlDB.Exec("DELETE FROM sessions WHERE member_id = ?", memberID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return affected > 0, nil
}
