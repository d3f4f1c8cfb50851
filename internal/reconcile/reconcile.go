// Package reconcile keeps the persisted lead table free of duplicates. It
// filters new batches against stored keys before insert, removes duplicates
// that slipped in earlier, and merges duplicate groups on request.
package reconcile

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/metroad/leadops/internal/dedup"
	"github.com/metroad/leadops/internal/lead"
	"github.com/metroad/leadops/internal/store"
)

// DefaultDeleteBatchSize bounds the number of ids per delete statement.
const DefaultDeleteBatchSize = 100

// Options configures a Reconciler.
type Options struct {
	CheckBizID      bool
	DeleteBatchSize int
}

// Reconciler applies the dedup rules to the lead store.
type Reconciler struct {
	store store.Store
	opts  Options
}

// New creates a Reconciler over s.
func New(s store.Store, opts Options) *Reconciler {
	if opts.DeleteBatchSize <= 0 {
		opts.DeleteBatchSize = DefaultDeleteBatchSize
	}
	return &Reconciler{store: s, opts: opts}
}

// SaveResult reports the outcome of SaveNew.
type SaveResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// CleanupResult reports the outcome of Cleanup.
type CleanupResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Batches int `json:"batches"`
}

// SaveNew inserts the leads that match neither a stored record nor an earlier
// lead of the same batch.
func (r *Reconciler) SaveNew(ctx context.Context, leads []lead.Lead) (*SaveResult, error) {
	res := &SaveResult{}
	if len(leads) == 0 {
		return res, nil
	}

	keys, err := r.store.ListKeys(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: load stored keys")
	}

	d := dedup.NewDetector(dedup.WithBizIDCheck(r.opts.CheckBizID))
	d.Seed(keys...)

	fresh := make([]lead.Lead, 0, len(leads))
	for _, l := range leads {
		if d.Offer(l) {
			fresh = append(fresh, l)
		}
	}
	res.Skipped = len(leads) - len(fresh)

	if len(fresh) > 0 {
		n, err := r.store.InsertLeads(ctx, fresh)
		if err != nil {
			return nil, eris.Wrap(err, "reconcile: insert leads")
		}
		res.Inserted = n
	}

	zap.L().Info("reconcile: saved leads",
		zap.Int("offered", len(leads)),
		zap.Int("stored_keys", len(keys)),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// Cleanup deletes stored duplicates, keeping the earliest-created record of
// each duplicate set.
func (r *Reconciler) Cleanup(ctx context.Context) (*CleanupResult, error) {
	keys, err := r.store.ListKeys(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: load stored keys")
	}

	res := &CleanupResult{Scanned: len(keys)}
	d := dedup.NewDetector(dedup.WithBizIDCheck(r.opts.CheckBizID))
	var doomed []string
	for _, k := range keys {
		if !d.Offer(keyLead(k)) {
			doomed = append(doomed, k.ID)
		}
	}

	for batch := range slices.Chunk(doomed, r.opts.DeleteBatchSize) {
		n, err := r.store.DeleteLeads(ctx, batch)
		if err != nil {
			return nil, eris.Wrapf(err, "reconcile: delete batch %d", res.Batches+1)
		}
		res.Deleted += n
		res.Batches++
	}

	zap.L().Info("reconcile: cleanup complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("deleted", res.Deleted),
		zap.Int("batches", res.Batches),
	)
	return res, nil
}

// MergeGroup merges the leads with the given ids into the most complete one
// and deletes the rest. The rewrite and the delete commit together.
func (r *Reconciler) MergeGroup(ctx context.Context, ids []string) (lead.Lead, error) {
	ids = uniqueIDs(ids)
	if len(ids) < 2 {
		return lead.Lead{}, eris.New("reconcile: merge needs at least two lead ids")
	}

	group, err := r.store.GetLeads(ctx, ids)
	if err != nil {
		return lead.Lead{}, eris.Wrap(err, "reconcile: load merge group")
	}
	if len(group) != len(ids) {
		return lead.Lead{}, eris.Wrapf(store.ErrNotFound, "reconcile: found %d of %d leads", len(group), len(ids))
	}

	merged := dedup.Merge(group)
	rest := make([]string, 0, len(ids)-1)
	for _, id := range ids {
		if id != merged.ID {
			rest = append(rest, id)
		}
	}
	if err := r.store.MergeLeads(ctx, merged, rest); err != nil {
		return lead.Lead{}, eris.Wrap(err, "reconcile: merge leads")
	}

	zap.L().Info("reconcile: merged group",
		zap.String("base_id", merged.ID),
		zap.Int("deleted", len(rest)),
	)
	return merged, nil
}

// Stats computes duplication statistics over every stored lead.
func (r *Reconciler) Stats(ctx context.Context, threshold float64) (dedup.Stats, error) {
	leads, err := r.store.ListLeads(ctx, store.ListFilter{})
	if err != nil {
		return dedup.Stats{}, eris.Wrap(err, "reconcile: list leads")
	}
	return dedup.GenerateStats(leads,
		dedup.WithBizIDCheck(r.opts.CheckBizID),
		dedup.WithSimilarity(threshold),
	), nil
}

// Groups returns the exact-key duplicate groups among stored leads.
func (r *Reconciler) Groups(ctx context.Context) ([][]lead.Lead, error) {
	leads, err := r.store.ListLeads(ctx, store.ListFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list leads")
	}
	return dedup.Group(leads), nil
}

func keyLead(k lead.KeyRecord) lead.Lead {
	return lead.Lead{
		ID:                     k.ID,
		BusinessName:           k.BusinessName,
		RoadAddress:            k.RoadAddress,
		BusinessRegistrationID: k.BusinessRegistrationID,
		CreatedAt:              k.CreatedAt,
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
