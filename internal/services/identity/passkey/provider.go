package passkey

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Provider builds and caches one WebAuthn handle per caller origin.
//
// The relying party id is static per deployment or derived from the
// origin's hostname, depending on configuration; either way a handle is
// only valid for the origin it was built for, so the cache keys by origin.
type Provider struct {
	cfg   Config
	mu    sync.Mutex
	cache map[string]*webauthn.WebAuthn
}

// NewProvider builds a provider for the configured relying party.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg, cache: make(map[string]*webauthn.WebAuthn)}
}

// RPID returns the relying party id derived from origin.
func (p *Provider) RPID(origin string) (string, error) {
	if p.cfg.RPIDMode == RPIDModeStatic {
		return p.cfg.RPID, nil
	}
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("origin %q has no hostname", origin)
	}
	return host, nil
}

// For returns the WebAuthn handle and relying party id for origin.
func (p *Provider) For(origin string) (*webauthn.WebAuthn, string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil, "", fmt.Errorf("origin is required")
	}
	rpID, err := p.RPID(origin)
	if err != nil {
		return nil, "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.cache[origin]; ok {
		return cached, rpID, nil
	}
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: p.cfg.RPDisplayName,
		RPID:          rpID,
		RPOrigins:     []string{origin},
	})
	if err != nil {
		return nil, "", fmt.Errorf("configure webauthn for %s: %w", rpID, err)
	}
	p.cache[origin] = web
	return web, rpID, nil
}
