package main

import (
	"fmt"
	"net/http"

	"github.com/pders01/moji/internal/cache"
	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/fetch"
	"github.com/pders01/moji/internal/history"
	"github.com/pders01/moji/internal/search"
	"github.com/pders01/moji/internal/source"
	"github.com/pders01/moji/internal/storage"
)

// deps is the pipeline behind every command that searches.
type deps struct {
	searcher  *search.Service
	scheduler *fetch.Scheduler
	images    *cache.ByteCache
	store     *storage.Store
	history   *history.Service
}

// newDeps wires source, search service, byte cache and scheduler. The
// history store is opened only when withHistory is set.
func newDeps(cfg *config.Config, withHistory bool) (*deps, error) {
	searchClient := source.NewHTTPClient(cfg.Search.ConnectTimeout, cfg.Search.ReadTimeout)
	registry, err := source.NewConfiguredRegistry(cfg, searchClient)
	if err != nil {
		return nil, fmt.Errorf("configuring sources: %w", err)
	}
	src, err := registry.Select(cfg.Search.Source)
	if err != nil {
		return nil, fmt.Errorf("selecting source (have %v): %w", registry.Names(), err)
	}
	svc, err := search.NewFromConfig(cfg, src)
	if err != nil {
		return nil, err
	}

	opts, err := fetch.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts.Headers = imageHeaders()

	var cacheOpts []cache.ByteOption
	if cfg.Cache.MaxItemBytes > 0 {
		cacheOpts = append(cacheOpts, cache.WithMaxItemBytes(cfg.Cache.MaxItemBytes))
	}
	images := cache.NewByteCache(cfg.Cache.ByteBudget, cacheOpts...)
	imageClient := source.NewHTTPClient(cfg.Fetch.ConnectTimeout, cfg.Fetch.ReadTimeout)

	d := &deps{
		searcher:  svc,
		images:    images,
		scheduler: fetch.New(imageClient, images, opts),
	}

	if withHistory {
		store, err := storage.NewStore(cfg.Database.Path, cfg.Database.Timeout)
		if err != nil {
			d.scheduler.Close()
			return nil, fmt.Errorf("opening history: %w", err)
		}
		d.store = store
		d.history = history.NewService(store)
	}
	return d, nil
}

// imageHeaders sends the endpoint profile's browser headers to the CDN so
// hotlink protection accepts the request.
func imageHeaders() http.Header {
	h := http.Header{}
	p, err := source.DefaultProfile()
	if err != nil {
		return h
	}
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	return h
}

func (d *deps) Close() error {
	d.scheduler.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// openHistory opens only the history store.
func openHistory(cfg *config.Config) (*storage.Store, *history.Service, error) {
	store, err := storage.NewStore(cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history: %w", err)
	}
	return store, history.NewService(store), nil
}
