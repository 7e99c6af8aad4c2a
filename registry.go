package xstreams

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/trickstertwo/xlog"
)

// ProviderFactory builds an AdapterFactory for a named provider from a config blob.
type ProviderFactory func(provider string, cfg map[string]any, logger *xlog.Logger) (AdapterFactory, error)

// ErrUnknownBackend is returned by NewProvider for an unregistered backend.
type ErrUnknownBackend struct {
	name string
}

func (e ErrUnknownBackend) Error() string {
	return fmt.Sprintf("xstreams: unknown backend %q", e.name)
}

var (
	backendRegistryMu sync.RWMutex
	backendRegistry   = map[string]ProviderFactory{}
)

// RegisterBackend registers a storage backend under name. Backends register themselves
// from init.
func RegisterBackend(name string, factory ProviderFactory) error {
	if name == "" {
		return errors.New("backend name must not be empty")
	}
	if factory == nil {
		return errors.New("backend factory must not be nil")
	}
	backendRegistryMu.Lock()
	backendRegistry[name] = factory
	backendRegistryMu.Unlock()
	return nil
}

// NewProvider builds the AdapterFactory of provider on the named backend.
func NewProvider(backend, provider string, cfg map[string]any, logger *xlog.Logger) (AdapterFactory, error) {
	backendRegistryMu.RLock()
	f, ok := backendRegistry[backend]
	backendRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownBackend{name: backend}
	}
	return f(provider, cfg, logger)
}

// Backends lists registered backend names, sorted.
func Backends() []string {
	backendRegistryMu.RLock()
	defer backendRegistryMu.RUnlock()
	out := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
