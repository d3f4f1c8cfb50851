// Package lead defines the sales lead record shared by ingestion, dedup, storage and the API.
package lead

import (
	"time"

	"github.com/rotisserie/eris"
)

// Status is a stage in the sales pipeline.
type Status string

const (
	StatusNew         Status = "new"
	StatusContacted   Status = "contacted"
	StatusProposal    Status = "proposal"
	StatusNegotiating Status = "negotiating"
	StatusContracted  Status = "contracted"
	StatusRejected    Status = "rejected"
)

// Statuses lists every pipeline stage in funnel order.
var Statuses = []Status{
	StatusNew,
	StatusContacted,
	StatusProposal,
	StatusNegotiating,
	StatusContracted,
	StatusRejected,
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", eris.Errorf("lead: unknown status %q", s)
}

// Lead is a business-registry record tracked by the sales team.
//
// Empty strings and nil pointers mean "absent". The scorer and merger in the
// dedup package depend on that distinction, so zero coordinates are only
// absent when the pointer is nil.
type Lead struct {
	ID                     string   `json:"id"`
	BusinessName           string   `json:"business_name"`
	RoadAddress            string   `json:"road_address,omitempty"`
	LotAddress             string   `json:"lot_address,omitempty"`
	BusinessRegistrationID string   `json:"business_registration_id,omitempty"`
	Latitude               *float64 `json:"latitude,omitempty"`
	Longitude              *float64 `json:"longitude,omitempty"`
	CoordX                 *float64 `json:"coord_x,omitempty"` // source CRS easting
	CoordY                 *float64 `json:"coord_y,omitempty"` // source CRS northing
	NearestStation         string   `json:"nearest_station,omitempty"`
	StationDistance        *float64 `json:"station_distance_m,omitempty"`
	StationLines           []string `json:"station_lines,omitempty"`
	Phone                  string   `json:"phone,omitempty"`
	MedicalSubject         string   `json:"medical_subject,omitempty"`
	Category               string   `json:"category,omitempty"`
	ServiceID              string   `json:"service_id,omitempty"`
	LicenseDate            string   `json:"license_date,omitempty"`
	Status                 Status   `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCoordinates reports whether both WGS84 coordinates are present.
func (l Lead) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// HasSourceCoordinates reports whether both raw source coordinates are present.
func (l Lead) HasSourceCoordinates() bool {
	return l.CoordX != nil && l.CoordY != nil
}

// KeyRecord is the identity projection of a stored lead.
type KeyRecord struct {
	ID                     string
	BusinessName           string
	RoadAddress            string
	BusinessRegistrationID string
	CreatedAt              time.Time
}

// Key returns the identity projection of l.
func (l Lead) Key() KeyRecord {
	return KeyRecord{
		ID:                     l.ID,
		BusinessName:           l.BusinessName,
		RoadAddress:            l.RoadAddress,
		BusinessRegistrationID: l.BusinessRegistrationID,
		CreatedAt:              l.CreatedAt,
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
