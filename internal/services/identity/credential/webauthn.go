package credential

import (
	"sort"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Authenticator is one registered WebAuthn credential addressed by a
// caller-chosen device name. The verified credential from the WebAuthn
// library is stored verbatim; CreatedAt orders devices by registration.
type Authenticator struct {
	Credential webauthn.Credential `json:"credential"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// WebAuthnItem groups the authenticators registered under one relying
// party id, plus the ordered set of device names offered for login.
type WebAuthnItem struct {
	Authenticators map[string]Authenticator `json:"authenticators"`
	EnableDevices  []string                 `json:"enableDevices"`
}

// Get returns the authenticator registered under name.
func (item *WebAuthnItem) Get(name string) (Authenticator, bool) {
	a, ok := item.Authenticators[name]
	return a, ok
}

// Has reports whether a device name is already registered.
func (item *WebAuthnItem) Has(name string) bool {
	_, ok := item.Authenticators[name]
	return ok
}

// Set stores an authenticator under name, replacing any previous one.
func (item *WebAuthnItem) Set(name string, a Authenticator) {
	if item.Authenticators == nil {
		item.Authenticators = make(map[string]Authenticator)
	}
	item.Authenticators[name] = a
}

// Delete removes the authenticator stored under name and drops the name
// from the enabled set. Returns false when the name is not registered.
func (item *WebAuthnItem) Delete(name string) bool {
	if !item.Has(name) {
		return false
	}
	delete(item.Authenticators, name)
	item.Disable(name)
	return true
}

// Empty reports whether the item holds no authenticators.
func (item *WebAuthnItem) Empty() bool {
	return len(item.Authenticators) == 0
}

// Enable adds a device name to the enabled set when registered and not
// already present. Order of enablement is preserved.
func (item *WebAuthnItem) Enable(name string) bool {
	if !item.Has(name) {
		return false
	}
	for _, enabled := range item.EnableDevices {
		if enabled == name {
			return true
		}
	}
	item.EnableDevices = append(item.EnableDevices, name)
	return true
}

// Disable removes a device name from the enabled set.
func (item *WebAuthnItem) Disable(name string) {
	kept := item.EnableDevices[:0]
	for _, enabled := range item.EnableDevices {
		if enabled != name {
			kept = append(kept, enabled)
		}
	}
	item.EnableDevices = kept
	if len(item.EnableDevices) == 0 {
		item.EnableDevices = nil
	}
}

// Names returns all registered device names ordered by registration time,
// ties broken by name.
func (item *WebAuthnItem) Names() []string {
	names := make([]string, 0, len(item.Authenticators))
	for name := range item.Authenticators {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := item.Authenticators[names[i]], item.Authenticators[names[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return names[i] < names[j]
	})
	return names
}

// EffectiveAllowedNames returns the enabled device names, or the single
// first-registered device when nothing is enabled. The result is empty
// only when the item holds no authenticators at all; callers must treat
// that as a distinct failure before reaching here.
func (item *WebAuthnItem) EffectiveAllowedNames() []string {
	enabled := make([]string, 0, len(item.EnableDevices))
	for _, name := range item.EnableDevices {
		if item.Has(name) {
			enabled = append(enabled, name)
		}
	}
	if len(enabled) > 0 {
		return enabled
	}
	names := item.Names()
	if len(names) == 0 {
		return nil
	}
	return names[:1]
}

// Descriptors returns public-key descriptors for the named devices, or for
// every registered device when names is empty. Unknown names are skipped.
func (item *WebAuthnItem) Descriptors(names []string) []protocol.CredentialDescriptor {
	if len(names) == 0 {
		names = item.Names()
	}
	descriptors := make([]protocol.CredentialDescriptor, 0, len(names))
	for _, name := range names {
		a, ok := item.Get(name)
		if !ok {
			continue
		}
		descriptors = append(descriptors, a.Credential.Descriptor())
	}
	return descriptors
}

// Credentials returns the stored WebAuthn credentials for the named
// devices, or every credential when names is empty.
func (item *WebAuthnItem) Credentials(names []string) []webauthn.Credential {
	if len(names) == 0 {
		names = item.Names()
	}
	credentials := make([]webauthn.Credential, 0, len(names))
	for _, name := range names {
		a, ok := item.Get(name)
		if !ok {
			continue
		}
		credentials = append(credentials, a.Credential)
	}
	return credentials
}

// FindByCredentialID resolves a raw credential id to its device name.
func (item *WebAuthnItem) FindByCredentialID(credentialID []byte) (string, bool) {
	for name, a := range item.Authenticators {
		if string(a.Credential.ID) == string(credentialID) {
			return name, true
		}
	}
	return "", false
}
