package syncer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

// PullResult reports a pull-merge
type PullResult struct {
	Remote    int `json:"remote"`
	Total     int `json:"total"`
	Merged    int `json:"merged"`
	Added     int `json:"added"`
	LocalOnly int `json:"local_only"`
}

// Puller merges the remote catalog into the local products
type Puller struct {
	store  ProductStore
	remote CatalogLister
	opts   Options
	logger *zap.Logger
}

// NewPuller creates a Puller
func NewPuller(store ProductStore, remote CatalogLister, opts Options) *Puller {
	opts = opts.withDefaults()
	return &Puller{
		store:  store,
		remote: remote,
		opts:   opts,
		logger: opts.Logger,
	}
}

// PullAndMerge fetches every remote product, then merges. A local product
// matched by remote id, or else by the first match key both sides carry, gets
// every remote-reported key overwritten and keeps its other keys. Unmatched
// remote products are appended; local products absent remotely are kept as-is.
// A fetch failure returns before anything is written.
func (p *Puller) PullAndMerge(ctx context.Context) (*PullResult, error) {
	if !p.opts.Live {
		return nil, pkgerrors.ErrLiveSyncDisabled
	}

	remote, err := p.remote.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote catalog: %w", err)
	}

	local, err := p.store.LoadProducts(false)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(local))
	byKey := make(map[string]map[string]int, len(p.opts.MatchKeys))
	for _, k := range p.opts.MatchKeys {
		byKey[k] = make(map[string]int)
	}
	for i, rec := range local {
		if id := rec.RemoteID(); id != "" {
			if _, dup := byID[id]; !dup {
				byID[id] = i
			}
			continue
		}
		// business keys only correlate records not yet created remotely
		for _, k := range p.opts.MatchKeys {
			if v := strings.TrimSpace(rec[k]); v != "" {
				if _, dup := byKey[k][v]; !dup {
					byKey[k][v] = i
				}
			}
		}
	}

	matched := make([]bool, len(local))
	merged := local
	result := &PullResult{Remote: len(remote)}

	for _, product := range remote {
		incoming := product.ToRecord()
		idx := p.match(incoming, byID, byKey)
		if idx < 0 || matched[idx] {
			merged = append(merged, incoming)
			result.Added++
			continue
		}

		matched[idx] = true
		target := merged[idx]
		for k, v := range incoming {
			target[k] = v
		}
		target.SetRemoteID(incoming[models.KeyID])
		result.Merged++
	}

	for _, m := range matched {
		if !m {
			result.LocalOnly++
		}
	}
	result.Total = len(merged)

	if err := p.store.SaveProducts(merged); err != nil {
		return nil, fmt.Errorf("failed to save merged catalog: %w", err)
	}

	p.logger.Info("Pull merge finished",
		zap.Int("remote", result.Remote),
		zap.Int("merged", result.Merged),
		zap.Int("added", result.Added),
		zap.Int("local_only", result.LocalOnly))

	return result, nil
}

func (p *Puller) match(incoming models.Record, byID map[string]int, byKey map[string]map[string]int) int {
	if idx, ok := byID[incoming.RemoteID()]; ok {
		return idx
	}
	for _, k := range p.opts.MatchKeys {
		if v := strings.TrimSpace(incoming[k]); v != "" {
			if idx, ok := byKey[k][v]; ok {
				return idx
			}
		}
	}
	return -1
}
