package conflict

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Strategy defines how a conflict is settled.
type Strategy string

const (
	// StrategyLocalWins pushes the local version over the remote one.
	StrategyLocalWins Strategy = "local-wins"

	// StrategyRemoteWins overwrites the local cache with the remote version.
	StrategyRemoteWins Strategy = "remote-wins"

	// StrategyMerge selects the newer page, or unions category members.
	StrategyMerge Strategy = "merge"

	// StrategyManual leaves both sides untouched until an operator decides.
	StrategyManual Strategy = "manual"
)

// DefaultStrategy applies to any item without an explicit entry. The remote
// is the authoritative store, so unattended runs converge on it.
const DefaultStrategy = StrategyRemoteWins

// IsValid returns true if the strategy is recognized.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyLocalWins, StrategyRemoteWins, StrategyMerge, StrategyManual:
		return true
	default:
		return false
	}
}

// AllStrategies returns all supported conflict strategies.
func AllStrategies() []Strategy {
	return []Strategy{StrategyLocalWins, StrategyRemoteWins, StrategyMerge, StrategyManual}
}

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}

// Description returns a human-readable description of the strategy.
func (s Strategy) Description() string {
	switch s {
	case StrategyLocalWins:
		return "Push the local version, overwriting the remote"
	case StrategyRemoteWins:
		return "Replace the local copy with the remote version"
	case StrategyMerge:
		return "Keep the newer page; union category members"
	case StrategyManual:
		return "Hold the item until an operator resolves it"
	default:
		return "Unknown strategy"
	}
}

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(name)
	if !s.IsValid() {
		return "", errors.WithContext(
			errors.NewError(errors.CodeValidation, fmt.Sprintf("unknown strategy %q", name), errors.ErrUnknownStrategy),
			"strategy", name)
	}
	return s, nil
}

// Registry maps item ids to strategies. Lookup order is: explicit id entry,
// then the per-kind default, then the registry fallback.
type Registry struct {
	mu       sync.RWMutex
	fallback Strategy
	byID     map[string]Strategy
	byKind   map[Kind]Strategy
}

// NewRegistry creates a registry. An empty fallback selects DefaultStrategy.
func NewRegistry(fallback Strategy) (*Registry, error) {
	if fallback == "" {
		fallback = DefaultStrategy
	}
	if !fallback.IsValid() {
		return nil, errors.NewError(errors.CodeValidation,
			fmt.Sprintf("invalid fallback strategy %q", fallback), errors.ErrUnknownStrategy)
	}
	return &Registry{
		fallback: fallback,
		byID:     make(map[string]Strategy),
		byKind:   make(map[Kind]Strategy),
	}, nil
}

// Set assigns a strategy to a single item id.
func (r *Registry) Set(id string, s Strategy) error {
	if id == "" {
		return fmt.Errorf("item id cannot be empty")
	}
	if !s.IsValid() {
		return errors.NewError(errors.CodeValidation, fmt.Sprintf("invalid strategy %q", s), errors.ErrUnknownStrategy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = s
	return nil
}

// SetKindDefault assigns the strategy used for items of kind without an id entry.
func (r *Registry) SetKindDefault(k Kind, s Strategy) error {
	if !s.IsValid() {
		return errors.NewError(errors.CodeValidation, fmt.Sprintf("invalid strategy %q", s), errors.ErrUnknownStrategy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[k] = s
	return nil
}

// Unset removes the entry for id. It reports whether one existed.
func (r *Registry) Unset(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

// Lookup returns the strategy for an item.
func (r *Registry) Lookup(id string, kind Kind) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.byID[id]; ok {
		return s
	}
	if s, ok := r.byKind[kind]; ok {
		return s
	}
	return r.fallback
}

// Fallback returns the strategy used when nothing more specific matches.
func (r *Registry) Fallback() Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Entry is one explicit registry assignment.
type Entry struct {
	ID       string
	Strategy Strategy
}

// Entries returns the explicit id assignments sorted by id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.byID))
	for id, s := range r.byID {
		out = append(out, Entry{ID: id, Strategy: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
