// Package credential models the password and WebAuthn credentials held by
// a member. Containers collapse on delete: removing the last authenticator
// drops its relying-party item, and removing the last item drops the
// WebAuthn credential entirely, so no empty containers persist.
package credential

// Set is the full credential set of one member.
type Set struct {
	Password *Password                `json:"password,omitempty"`
	WebAuthn map[string]*WebAuthnItem `json:"webAuthn,omitempty"`
}

// Item returns the WebAuthn item for a relying party id.
func (s *Set) Item(rpID string) (*WebAuthnItem, bool) {
	item, ok := s.WebAuthn[rpID]
	return item, ok
}

// EnsureItem returns the WebAuthn item for a relying party id, creating
// it when absent.
func (s *Set) EnsureItem(rpID string) *WebAuthnItem {
	if s.WebAuthn == nil {
		s.WebAuthn = make(map[string]*WebAuthnItem)
	}
	item, ok := s.WebAuthn[rpID]
	if !ok {
		item = &WebAuthnItem{}
		s.WebAuthn[rpID] = item
	}
	return item
}

// DeleteAuthenticator removes one device under a relying party id,
// collapsing empty containers. Returns false when no such device exists.
func (s *Set) DeleteAuthenticator(rpID, name string) bool {
	item, ok := s.Item(rpID)
	if !ok {
		return false
	}
	if !item.Delete(name) {
		return false
	}
	if item.Empty() {
		delete(s.WebAuthn, rpID)
	}
	if len(s.WebAuthn) == 0 {
		s.WebAuthn = nil
	}
	return true
}

// HasWebAuthn reports whether any authenticator is registered under any
// relying party id.
func (s *Set) HasWebAuthn() bool {
	for _, item := range s.WebAuthn {
		if !item.Empty() {
			return true
		}
	}
	return false
}

// SetPassword replaces the password credential.
func (s *Set) SetPassword(p Password) {
	s.Password = &p
}
