// Package store persists leads in Postgres (PostGIS) or SQLite.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/metroad/leadops/internal/lead"
)

// ErrNotFound is returned when an update targets a lead id that does not exist.
var ErrNotFound = eris.New("store: lead not found")

// ListFilter specifies criteria for listing leads. Zero values match everything;
// Limit 0 returns all matches.
type ListFilter struct {
	Status    lead.Status `json:"status,omitempty"`
	ServiceID string      `json:"service_id,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}

// Store defines lead persistence. Listings are ordered by created_at, then id.
type Store interface {
	// Leads
	ListLeads(ctx context.Context, filter ListFilter) ([]lead.Lead, error)
	GetLeads(ctx context.Context, ids []string) ([]lead.Lead, error)
	ListKeys(ctx context.Context) ([]lead.KeyRecord, error)
	InsertLeads(ctx context.Context, leads []lead.Lead) (int, error)
	UpdateLead(ctx context.Context, l lead.Lead) error
	UpdateStatus(ctx context.Context, id string, status lead.Status) error
	DeleteLeads(ctx context.Context, ids []string) (int, error)
	// MergeLeads atomically rewrites merged and deletes removeIDs.
	MergeLeads(ctx context.Context, merged lead.Lead, removeIDs []string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// leadColumns is the column order shared by inserts and selects.
var leadColumns = []string{
	"id", "business_name", "road_address", "lot_address", "business_registration_id",
	"latitude", "longitude", "coord_x", "coord_y",
	"nearest_station", "station_distance_m", "station_lines",
	"phone", "medical_subject", "category", "service_id", "license_date",
	"status", "created_at", "updated_at",
}

// prepareInsert fills the fields the database requires but callers may leave unset.
func prepareInsert(l lead.Lead, now time.Time) lead.Lead {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = lead.StatusNew
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	return l
}

// orderByIDs returns leads in the order of ids, skipping ids that were not found.
func orderByIDs(leads []lead.Lead, ids []string) []lead.Lead {
	byID := make(map[string]lead.Lead, len(leads))
	for _, l := range leads {
		byID[l.ID] = l
	}
	out := make([]lead.Lead, 0, len(leads))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if l, ok := byID[id]; ok && !seen[id] {
			out = append(out, l)
			seen[id] = true
		}
	}
	return out
}
