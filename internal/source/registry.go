package source

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/media"
	"github.com/pders01/moji/internal/validation"
)

type entry struct {
	src      Source
	priority int
}

// Registry holds the configured sources.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds src. Higher priority sources are preferred by Default.
func (r *Registry) Register(src Source, priority int) {
	r.entries = append(r.entries, entry{src: src, priority: priority})
}

// Get returns the source called name.
func (r *Registry) Get(name string) (Source, error) {
	for _, e := range r.entries {
		if e.src.Name() == name {
			return e.src, nil
		}
	}
	return nil, fmt.Errorf("unknown source %q (have %v)", name, r.Names())
}

// Default returns the highest priority source, or nil when empty.
func (r *Registry) Default() Source {
	var best Source
	highest := -1
	for _, e := range r.entries {
		if e.priority > highest {
			best, highest = e.src, e.priority
		}
	}
	return best
}

// Names lists sources by descending priority.
func (r *Registry) Names() []string {
	sorted := append([]entry(nil), r.entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].priority > sorted[j].priority })
	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.src.Name()
	}
	return names
}

// NewConfiguredRegistry registers the container source and, when a feed
// template is configured, the feed source.
func NewConfiguredRegistry(cfg *config.Config, client *http.Client) (*Registry, error) {
	v := validation.ForHosts(cfg.Search.AllowPrivateHosts)
	limits := media.Limits{MaxPixels: cfg.Image.MaxPixels, MaxDimension: cfg.Image.MaxDimension}

	r := NewRegistry()
	container, err := NewContainerSource(client,
		WithBaseURL(cfg.Search.BaseURL),
		WithWarmupURL(cfg.Search.WarmupURL),
		WithLimits(limits),
		WithValidator(v),
	)
	if err != nil {
		return nil, err
	}
	r.Register(container, 100)

	if cfg.Search.FeedURL != "" {
		feed, err := NewFeedSource(cfg.Search.FeedURL, client, v)
		if err != nil {
			return nil, err
		}
		r.Register(feed, 50)
	}
	return r, nil
}

// Select returns the source named by name, or the default when empty.
func (r *Registry) Select(name string) (Source, error) {
	if name == "" {
		if d := r.Default(); d != nil {
			return d, nil
		}
		return nil, fmt.Errorf("no sources registered")
	}
	return r.Get(name)
}
