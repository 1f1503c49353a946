// Package services holds the per-service OAuth dialects. Each connector
// registers one declarative Dialect describing how its provider speaks
// OAuth2; the generic engines in pkg/oauth do the rest.
package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grantflow/grantflow/pkg/oauth"
)

var (
	mu       sync.RWMutex
	dialects = make(map[string]*oauth.Dialect)
)

// Register adds a dialect to the registry. It panics on duplicate or
// invalid registration since all registrations happen at init time.
func Register(d *oauth.Dialect) {
	if err := d.Validate(); err != nil {
		panic(fmt.Sprintf("invalid dialect: %v", err))
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialects[d.Service]; exists {
		panic(fmt.Sprintf("dialect already registered for service %q", d.Service))
	}
	dialects[d.Service] = d
}

// Get returns the dialect for a service name.
func Get(serviceName string) (*oauth.Dialect, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := dialects[serviceName]
	if !ok {
		return nil, fmt.Errorf("unknown service %q (known services: %v)", serviceName, names())
	}
	return d, nil
}

// Names returns the registered service names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(dialects))
	for name := range dialects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
