package chunker

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog maps import-style paths to factories. Go cannot load code by
// name at runtime, so every strategy reachable from configuration is
// listed here at build time.
type Catalog map[string]Factory

// Resolve looks up path.
func (c Catalog) Resolve(path string) (Factory, error) {
	if f, ok := c[path]; ok {
		return f, nil
	}
	known := make([]string, 0, len(c))
	for p := range c {
		known = append(known, p)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("unknown chunker path %q (known: %s)", path, strings.Join(known, ", "))
}

// DefaultCatalog lists the strategies shipped with the service.
func DefaultCatalog(chunkSize, chunkOverlap int) Catalog {
	return Catalog{
		"sentence": func() (Strategy, error) {
			return NewSentenceStrategy(chunkSize, chunkOverlap)
		},
		"fishing_log": func() (Strategy, error) {
			return NewFishingLogStrategy(FishingModeHybrid, true)
		},
		"fishing_log/hybrid": func() (Strategy, error) {
			return NewFishingLogStrategy(FishingModeHybrid, true)
		},
		"fishing_log/event_only": func() (Strategy, error) {
			return NewFishingLogStrategy(FishingModeEventOnly, true)
		},
		"fishing_log/session_only": func() (Strategy, error) {
			return NewFishingLogStrategy(FishingModeSessionOnly, true)
		},
		"fishing_log/no_weather": func() (Strategy, error) {
			return NewFishingLogStrategy(FishingModeHybrid, false)
		},
	}
}

// NewDefaultRegistry builds a registry whose default is the sentence
// strategy, with every catalog entry available to RegisterFromPath.
func NewDefaultRegistry(chunkSize, chunkOverlap int) *Registry {
	catalog := DefaultCatalog(chunkSize, chunkOverlap)
	return NewRegistry(catalog["sentence"], catalog)
}
