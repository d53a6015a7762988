// Package lock serializes booking writes per provider and date.
package lock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sessionbook/internal/model"
)

// Locker hands out exclusive leases on keys.
type Locker interface {
	// Acquire blocks until key is held or ctx ends. The returned release is
	// safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// BookingKey is the lock key of a provider's day.
func BookingKey(providerID string, date time.Time) string {
	return fmt.Sprintf("booking:%s:%s", providerID, model.FormatDate(date))
}

// AcquireAll takes every distinct key in sorted order and returns a release
// for all of them. On failure nothing stays held.
func AcquireAll(ctx context.Context, l Locker, keys ...string) (func(), error) {
	uniq := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		uniq[k] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for k := range uniq {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, k := range sorted {
		release, err := l.Acquire(ctx, k)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func busy(key string, err error) error {
	return fmt.Errorf("%w: %s is being modified concurrently (%v)", model.ErrConflict, key, err)
}
