package service

import (
	"context"
	"time"

	"github.com/barterhub/backend/internal/metrics"
)

type FreshnessResult int

const (
	// FreshnessMiss: no key for the user; the collaborator must do a full
	// authoritative fetch and repopulate its cache.
	FreshnessMiss FreshnessResult = iota
	// FreshnessNotModified: the client's copy is current, skip the body.
	FreshnessNotModified
	// FreshnessStale: the profile changed after the client's hint. The
	// gate never serves profile content itself; the collaborator refetches
	// from the durable store.
	FreshnessStale
)

// FreshnessGate answers conditional profile reads from the last-modified
// key alone.
type FreshnessGate struct {
	keys FreshnessStore
}

func NewFreshnessGate(keys FreshnessStore) *FreshnessGate {
	return &FreshnessGate{keys: keys}
}

func (g *FreshnessGate) Check(ctx context.Context, userID string, clientHint time.Time) (FreshnessResult, error) {
	updatedAt, ok, err := g.keys.Get(ctx, userID)
	if err != nil {
		return 0, err
	}

	switch {
	case !ok:
		metrics.FreshnessChecks.WithLabelValues("miss").Inc()
		return FreshnessMiss, nil
	case !updatedAt.After(clientHint):
		metrics.FreshnessChecks.WithLabelValues("not_modified").Inc()
		return FreshnessNotModified, nil
	default:
		metrics.FreshnessChecks.WithLabelValues("stale").Inc()
		return FreshnessStale, nil
	}
}
