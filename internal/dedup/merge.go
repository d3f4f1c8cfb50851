package dedup

import (
	"cmp"
	"slices"

	"github.com/metroad/leadops/internal/lead"
)

// Merge collapses a duplicate group into one record. The most complete member
// (by QualityScore, first one on ties) is the base; its empty fields are then
// filled from the other members in group order. Non-empty base fields are
// never overwritten. A single-member group is returned unchanged.
func Merge(group []lead.Lead) lead.Lead {
	switch len(group) {
	case 0:
		return lead.Lead{}
	case 1:
		return group[0]
	}

	scores := make([]int, len(group))
	order := make([]int, len(group))
	for i, l := range group {
		scores[i] = QualityScore(l)
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	baseIdx := order[0]
	merged := group[baseIdx]
	merged.StationLines = slices.Clone(merged.StationLines)

	for i, donor := range group {
		if i == baseIdx {
			continue
		}
		backfill(&merged, donor)
	}
	return merged
}

// backfill copies donor values into fields that are still empty on dst.
func backfill(dst *lead.Lead, donor lead.Lead) {
	if dst.Latitude == nil && dst.Longitude == nil && donor.HasCoordinates() {
		dst.Latitude = lead.Float(*donor.Latitude)
		dst.Longitude = lead.Float(*donor.Longitude)
	}
	if dst.CoordX == nil && dst.CoordY == nil && donor.HasSourceCoordinates() {
		dst.CoordX = lead.Float(*donor.CoordX)
		dst.CoordY = lead.Float(*donor.CoordY)
	}
	fillString(&dst.RoadAddress, donor.RoadAddress)
	fillString(&dst.LotAddress, donor.LotAddress)
	fillString(&dst.Phone, donor.Phone)
	fillString(&dst.BusinessRegistrationID, donor.BusinessRegistrationID)
	fillString(&dst.LicenseDate, donor.LicenseDate)
}

func fillString(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
