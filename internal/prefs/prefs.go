// Package prefs persists the dashboard preference blob under a single key.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Key is the storage key of the preference blob.
const Key = "domain-task-flow-preferences"

// CurrentVersion is stamped on every saved blob. Blobs without a version
// are read as version 0 and defaulted field by field.
const CurrentVersion = 1

type DomainFilters struct {
	SortBy           string `json:"sortBy"`
	FilterTag        string `json:"filterTag"`
	FilterDependency string `json:"filterDependency"`
}

type Preferences struct {
	Version           int           `json:"version"`
	SortBy            string        `json:"sortBy"`
	SearchQuery       string        `json:"searchQuery"`
	ShowClosedDomains bool          `json:"showClosedDomains"`
	DomainFilters     DomainFilters `json:"domainFilters"`
}

// Defaults returns the preferences used when nothing is stored.
func Defaults() Preferences {
	return Preferences{
		Version:           CurrentVersion,
		SortBy:            "created_at",
		SearchQuery:       "",
		ShowClosedDomains: false,
		DomainFilters: DomainFilters{
			SortBy:           "created_at",
			FilterTag:        "all",
			FilterDependency: "all",
		},
	}
}

// Patch is a partial update; nil fields are left as stored. A non-nil
// DomainFilters replaces the stored filters as a whole.
type Patch struct {
	SortBy            *string        `json:"sortBy,omitempty"`
	SearchQuery       *string        `json:"searchQuery,omitempty"`
	ShowClosedDomains *bool          `json:"showClosedDomains,omitempty"`
	DomainFilters     *DomainFilters `json:"domainFilters,omitempty"`
}

// Backend stores string values by key.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Store struct {
	Backend Backend
}

// stored mirrors Preferences with pointers so absent fields can be told
// apart from zero values.
type stored struct {
	Version           *int    `json:"version"`
	SortBy            *string `json:"sortBy"`
	SearchQuery       *string `json:"searchQuery"`
	ShowClosedDomains *bool   `json:"showClosedDomains"`
	DomainFilters     *struct {
		SortBy           *string `json:"sortBy"`
		FilterTag        *string `json:"filterTag"`
		FilterDependency *string `json:"filterDependency"`
	} `json:"domainFilters"`
}

// Decode parses a stored blob, defaulting every absent field. A blob that
// is not a JSON object yields Defaults and an error.
func Decode(raw string) (Preferences, error) {
	p := Defaults()
	var s stored
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return p, fmt.Errorf("decode preferences: %w", err)
	}
	if s.SortBy != nil {
		p.SortBy = *s.SortBy
	}
	if s.SearchQuery != nil {
		p.SearchQuery = *s.SearchQuery
	}
	if s.ShowClosedDomains != nil {
		p.ShowClosedDomains = *s.ShowClosedDomains
	}
	if f := s.DomainFilters; f != nil {
		if f.SortBy != nil {
			p.DomainFilters.SortBy = *f.SortBy
		}
		if f.FilterTag != nil {
			p.DomainFilters.FilterTag = *f.FilterTag
		}
		if f.FilterDependency != nil {
			p.DomainFilters.FilterDependency = *f.FilterDependency
		}
	}
	p.Version = CurrentVersion
	return p, nil
}

// Apply merges patch into p.
func (p Preferences) Apply(patch Patch) Preferences {
	if patch.SortBy != nil {
		p.SortBy = *patch.SortBy
	}
	if patch.SearchQuery != nil {
		p.SearchQuery = *patch.SearchQuery
	}
	if patch.ShowClosedDomains != nil {
		p.ShowClosedDomains = *patch.ShowClosedDomains
	}
	if patch.DomainFilters != nil {
		p.DomainFilters = *patch.DomainFilters
	}
	p.Version = CurrentVersion
	return p
}

// Load returns the stored preferences. A missing or corrupt blob yields
// Defaults without error; only backend failures are returned.
func (s Store) Load(ctx context.Context) (Preferences, error) {
	raw, ok, err := s.Backend.Get(ctx, Key)
	if err != nil {
		return Defaults(), err
	}
	if !ok {
		return Defaults(), nil
	}
	p, _ := Decode(raw)
	return p, nil
}

// saveMu makes the read-merge-write of Save atomic for every Store in the
// process. Stores are values built per call, so the lock cannot live on them.
var saveMu sync.Mutex

// Save reads the current blob, merges patch and writes it back.
func (s Store) Save(ctx context.Context, patch Patch) (Preferences, error) {
	saveMu.Lock()
	defer saveMu.Unlock()
	cur, err := s.Load(ctx)
	if err != nil {
		return cur, err
	}
	next := cur.Apply(patch)
	data, err := json.Marshal(next)
	if err != nil {
		return cur, err
	}
	if err := s.Backend.Set(ctx, Key, string(data)); err != nil {
		return cur, err
	}
	return next, nil
}

// DomainFilters returns the stored task list filters.
func (s Store) DomainFilters(ctx context.Context) (DomainFilters, error) {
	p, err := s.Load(ctx)
	return p.DomainFilters, err
}

// SaveDomainFilters replaces the stored task list filters.
func (s Store) SaveDomainFilters(ctx context.Context, f DomainFilters) (Preferences, error) {
	return s.Save(ctx, Patch{DomainFilters: &f})
}

// MemoryBackend keeps values in a map.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: map[string]string{}}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}
