// Package ingest turns LOCALDATA license records into deduplicated leads.
package ingest

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/metroad/leadops/internal/geo"
	"github.com/metroad/leadops/internal/lead"
	"github.com/metroad/leadops/pkg/localdata"
)

// Convert maps a license row to a new lead. Rows without a business name are
// rejected. The license management number becomes the business registration id. Source coordinates are converted to WGS84 and, when stations is
// non-nil, the nearest station within maxDistance metres (0 = any) is attached.
func Convert(row localdata.Row, stations *geo.StationIndex, maxDistance float64) (lead.Lead, bool) {
	name := strings.TrimSpace(row.BusinessName)
	if name == "" {
		return lead.Lead{}, false
	}

	l := lead.Lead{
		ID:                     uuid.NewString(),
		BusinessName:           name,
		RoadAddress:            strings.TrimSpace(row.RoadAddress),
		LotAddress:             strings.TrimSpace(row.LotAddress),
		BusinessRegistrationID: strings.TrimSpace(row.ManagementNo),
		Phone:                  strings.TrimSpace(row.Phone),
		MedicalSubject:         strings.TrimSpace(row.MedicalSubject),
		Category:               strings.TrimSpace(row.Category),
		ServiceID:              strings.TrimSpace(row.ServiceID),
		LicenseDate:            strings.TrimSpace(row.LicenseDate),
		Status:                 lead.StatusNew,
	}

	x, okX := parseCoord(row.X)
	y, okY := parseCoord(row.Y)
	if okX && okY {
		l.CoordX, l.CoordY = lead.Float(x), lead.Float(y)
		lat, lon := geo.FromKorean1985(x, y)
		l.Latitude, l.Longitude = lead.Float(lat), lead.Float(lon)
	}

	if stations != nil && l.HasCoordinates() {
		if m, ok := stations.Nearest(*l.Latitude, *l.Longitude, maxDistance); ok {
			l.NearestStation = m.Station.Name
			l.StationDistance = lead.Float(math.Round(m.Distance))
			l.StationLines = slices.Clone(m.Station.Lines)
		}
	}
	return l, true
}

func parseCoord(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}
