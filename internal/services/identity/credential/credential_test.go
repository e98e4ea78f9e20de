package credential

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

func TestPasswordHashAndVerify(t *testing.T) {
	pw, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if pw.Hash == "correct horse" {
		t.Fatal("hash stored plaintext")
	}
	if !pw.Verify("correct horse") {
		t.Fatal("Verify rejected the right password")
	}
	if pw.Verify("wrong horse") {
		t.Fatal("Verify accepted the wrong password")
	}
}

func authAt(id string, created time.Time) Authenticator {
	return Authenticator{
		Credential: webauthn.Credential{ID: []byte(id)},
		CreatedAt:  created,
	}
}

func TestWebAuthnItemNamesOrderedByRegistration(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := &WebAuthnItem{}
	item.Set("laptop", authAt("c2", base.Add(time.Hour)))
	item.Set("phone", authAt("c1", base))
	item.Set("key", authAt("c3", base.Add(time.Hour)))

	names := item.Names()
	want := []string{"phone", "key", "laptop"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names = %v, want %v", names, want)
		}
	}
}

func TestEffectiveAllowedNamesPrefersEnabled(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := &WebAuthnItem{}
	item.Set("phone", authAt("c1", base))
	item.Set("laptop", authAt("c2", base.Add(time.Hour)))
	item.Enable("laptop")

	allowed := item.EffectiveAllowedNames()
	if len(allowed) != 1 || allowed[0] != "laptop" {
		t.Fatalf("EffectiveAllowedNames = %v, want [laptop]", allowed)
	}
}

func TestEffectiveAllowedNamesFallsBackToFirstRegistered(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := &WebAuthnItem{}
	item.Set("laptop", authAt("c2", base.Add(time.Hour)))
	item.Set("phone", authAt("c1", base))

	allowed := item.EffectiveAllowedNames()
	if len(allowed) != 1 || allowed[0] != "phone" {
		t.Fatalf("EffectiveAllowedNames = %v, want [phone]", allowed)
	}
}

func TestEffectiveAllowedNamesEmptyItem(t *testing.T) {
	item := &WebAuthnItem{}
	if allowed := item.EffectiveAllowedNames(); allowed != nil {
		t.Fatalf("EffectiveAllowedNames = %v, want nil", allowed)
	}
}

func TestDeleteDisablesDevice(t *testing.T) {
	item := &WebAuthnItem{}
	item.Set("phone", authAt("c1", time.Now()))
	item.Enable("phone")

	if !item.Delete("phone") {
		t.Fatal("Delete returned false for registered device")
	}
	if item.Delete("phone") {
		t.Fatal("Delete returned true for absent device")
	}
	if len(item.EnableDevices) != 0 {
		t.Fatalf("EnableDevices = %v, want empty", item.EnableDevices)
	}
}

func TestEnableUnknownDevice(t *testing.T) {
	item := &WebAuthnItem{}
	if item.Enable("ghost") {
		t.Fatal("Enable returned true for unregistered device")
	}
}

func TestFindByCredentialID(t *testing.T) {
	item := &WebAuthnItem{}
	item.Set("phone", authAt("cred-a", time.Now()))
	item.Set("laptop", authAt("cred-b", time.Now()))

	name, ok := item.FindByCredentialID([]byte("cred-b"))
	if !ok || name != "laptop" {
		t.Fatalf("FindByCredentialID = %q, %v, want laptop, true", name, ok)
	}
	if _, ok := item.FindByCredentialID([]byte("cred-c")); ok {
		t.Fatal("FindByCredentialID matched an unknown credential id")
	}
}

func TestDeleteAuthenticatorCollapsesContainers(t *testing.T) {
	set := &Set{}
	item := set.EnsureItem("example.com")
	item.Set("phone", authAt("c1", time.Now()))

	if !set.HasWebAuthn() {
		t.Fatal("HasWebAuthn = false after registration")
	}
	if !set.DeleteAuthenticator("example.com", "phone") {
		t.Fatal("DeleteAuthenticator returned false")
	}
	if set.WebAuthn != nil {
		t.Fatalf("WebAuthn = %v, want nil after last delete", set.WebAuthn)
	}
	if set.HasWebAuthn() {
		t.Fatal("HasWebAuthn = true after last delete")
	}
	if set.DeleteAuthenticator("example.com", "phone") {
		t.Fatal("DeleteAuthenticator returned true for absent device")
	}
}
