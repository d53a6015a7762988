package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// CatalogWatcher applies providers.yaml and re-applies it whenever its
// content changes. A touched but unchanged file is not re-applied, and an
// invalid edit keeps the last good catalog.
type CatalogWatcher struct {
	path     string
	interval time.Duration
	logger   zerolog.Logger
	apply    func(*CatalogConfig) error

	modTime time.Time
	digest  [sha256.Size]byte
	current *CatalogConfig
}

func NewCatalogWatcher(path string, interval time.Duration, logger zerolog.Logger, apply func(*CatalogConfig) error) *CatalogWatcher {
	if path == "" {
		path = "configs/providers.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CatalogWatcher{
		path:     path,
		interval: interval,
		logger:   logger.With().Str("component", "catalog").Str("path", path).Logger(),
		apply:    apply,
	}
}

// Current returns the last applied catalog.
func (w *CatalogWatcher) Current() *CatalogConfig {
	return w.current
}

// Reload reads the file and applies it when its content differs from the
// last applied version. It reports whether the catalog was applied.
func (w *CatalogWatcher) Reload() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("stat catalog: %w", err)
	}
	if w.current != nil && info.ModTime().Equal(w.modTime) {
		return false, nil
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("read catalog: %w", err)
	}
	digest := sha256.Sum256(data)
	if w.current != nil && digest == w.digest {
		w.modTime = info.ModTime()
		return false, nil
	}

	cfg, err := parseCatalog(data)
	if err != nil {
		return false, err
	}
	if w.apply != nil {
		if err := w.apply(cfg); err != nil {
			return false, fmt.Errorf("apply catalog: %w", err)
		}
	}

	added, removed := diffProviders(w.current, cfg)
	w.logger.Info().
		Int("providers", len(cfg.Providers)).
		Int("services", cfg.serviceCount()).
		Strs("added", added).
		Strs("removed", removed).
		Msg("catalog applied")

	w.current, w.digest, w.modTime = cfg, digest, info.ModTime()
	return true, nil
}

// Run polls the file until ctx is done. The first Reload must have
// succeeded before calling Run.
func (w *CatalogWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Reload(); err != nil {
				w.logger.Warn().Err(err).Msg("catalog reload failed, keeping previous")
			}
		}
	}
}

func (c *CatalogConfig) serviceCount() int {
	n := 0
	for _, p := range c.Providers {
		n += len(p.Services)
	}
	return n
}

func diffProviders(prev, next *CatalogConfig) (added, removed []string) {
	ids := func(c *CatalogConfig) []string {
		if c == nil {
			return nil
		}
		out := make([]string, 0, len(c.Providers))
		for _, p := range c.Providers {
			out = append(out, p.ID)
		}
		return out
	}
	before, after := ids(prev), ids(next)
	for _, id := range after {
		if !slices.Contains(before, id) {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if !slices.Contains(after, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}
