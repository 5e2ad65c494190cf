package ai

import (
	"fmt"
	"strings"
	"sync"
)

// Provider bundles a streaming client with the reframer that
// understands its wire format.
type Provider struct {
	Name     string
	Client   *Client
	Reframer Reframer
}

var (
	providersMu sync.RWMutex
	providers   = make(map[string]*Provider)
)

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RegisterProvider makes a provider available by name. Later
// registrations with the same name replace earlier ones.
func RegisterProvider(p *Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[normalize(p.Name)] = p
}

// LookupProvider resolves a provider by name.
func LookupProvider(name string) (*Provider, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// ProviderNames lists the registered providers.
func ProviderNames() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
