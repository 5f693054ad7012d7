package fastimport

import (
	"fmt"

	"github.com/humbled/svn2git/internal/config"
)

// Registry is the driver-owned map of repository name to Repository,
// built up in rule order. A PrefixingRepository's forwardTo target must
// already be present when it is constructed.
type Registry map[string]Repository

// NewRepository builds either a fresh FastImportRepository or, when
// forwardTo is non-empty, a PrefixingRepository wrapping the
// already-registered repository named forwardTo. It does not add the new
// repository to registry; the caller does that once construction
// succeeds, so a failed forwardTo lookup never leaves a partial entry.
func NewRepository(registry Registry, cache *ProcessCache, opts config.Options, name, forwardTo, prefix string) (Repository, error) {
	if forwardTo == "" {
		return NewFastImportRepository(name, opts, cache), nil
	}
	target, ok := registry[forwardTo]
	if !ok {
		return nil, fmt.Errorf("no repository named %q found (forwardTo of %q)", forwardTo, name)
	}
	return NewPrefixingRepository(target, prefix), nil
}
