// internal/backend/registry.go
package backend

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func Get(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names - posortowane nazwy zarejestrowanych fabryk
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build buduje backend o podanej nazwie z jego surowego configu.
func Build(name string, log zerolog.Logger, raw json.RawMessage, deps Deps) (Client, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("backend %q: brak fabryki (dostępne: %v)", name, Names())
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	c, err := f(log.With().Str("backend", name).Logger(), raw, deps)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}
	return c, nil
}
