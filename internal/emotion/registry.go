package emotion

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Options carries the settings used to construct a classifier. Fields a
// classifier has no use for are ignored.
type Options struct {
	Model      string
	Labels     []string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration // zero means no per-request timeout
	MaxRetries *int          // nil keeps the classifier's default
}

// Factory builds a classifier from options
type Factory func(opts Options) (Classifier, error)

// Entry describes a registered classifier
type Entry struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Remote      bool    `json:"remote" yaml:"remote"`
	Factory     Factory `json:"-" yaml:"-"`
}

// Registry manages the classifiers that can be selected by name
type Registry struct {
	entries map[string]Entry
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register adds a classifier entry. Names must be unique.
func (r *Registry) Register(entry Entry) error {
	if entry.Name == "" {
		return fmt.Errorf("classifier name cannot be empty")
	}
	if entry.Factory == nil {
		return fmt.Errorf("classifier %s has no factory", entry.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.Name]; exists {
		return fmt.Errorf("classifier %s already registered", entry.Name)
	}

	r.entries[entry.Name] = entry
	return nil
}

// Get returns the entry registered under name
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// New constructs the classifier registered under name
func (r *Registry) New(name string, opts Options) (Classifier, error) {
	entry, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown classifier %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}

	classifier, err := entry.Factory(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s classifier: %w", name, err)
	}

	return classifier, nil
}

// Names returns the registered classifier names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all entries sorted by name
func (r *Registry) List() []Entry {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, r.entries[name])
	}
	return entries
}
