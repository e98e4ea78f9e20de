// Package member defines the identity records managed by the member store.
package member

import (
	"regexp"
	"strings"

	apperrors "github.com/haven-sh/haven/internal/platform/errors"
	"github.com/haven-sh/haven/internal/services/identity/credential"
)

var (
	// ErrEmptyID indicates a missing member id.
	ErrEmptyID = apperrors.New(apperrors.CodeInvalidID, "member id is required")
	// ErrInvalidID indicates a member id that does not match the required format.
	ErrInvalidID = apperrors.New(apperrors.CodeInvalidID, "member id must be 3-32 lowercase alphanumeric, dot, dash, or underscore characters")

	idPattern = regexp.MustCompile(`^[a-z0-9_.\-]{3,32}$`)
)

// Flags carries optional member attributes.
type Flags struct {
	Admin bool `json:"admin,omitempty"`
}

// Member represents one operator identity. The id is immutable after
// creation; every credential or flag change rewrites the persisted table.
type Member struct {
	ID    string         `json:"-"`
	Name  string         `json:"name"`
	Auth  credential.Set `json:"auth"`
	Flags Flags          `json:"flags,omitzero"`
}

// TempMember is a member pending admin admission. From records the id of
// the member whose invitation admitted it into the temp table.
type TempMember struct {
	Member
	From string `json:"from"`
}

// ValidateID enforces the canonical member id constraints shared by
// registration and admission paths.
func ValidateID(s string) error {
	if !idPattern.MatchString(s) {
		return ErrInvalidID
	}
	return nil
}

// New creates a member from a normalized id and display name.
func New(id, name string) (Member, error) {
	normalizedID, err := NormalizeID(id)
	if err != nil {
		return Member{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = normalizedID
	}
	return Member{ID: normalizedID, Name: name}, nil
}

// NormalizeID trims and lowercases an id before validation.
func NormalizeID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", ErrEmptyID
	}
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}
