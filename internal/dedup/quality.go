package dedup

import "github.com/metroad/leadops/internal/lead"

// Completeness weights used to pick a merge base.
const (
	scoreBusinessName   = 10
	scoreRoadAddress    = 8
	scoreLotAddress     = 5
	scoreCoordinates    = 8
	scoreSourceCoords   = 6
	scoreNearestStation = 4
	scorePhone          = 6
	scoreBizID          = 4
	scoreMedicalSubject = 3
	scoreLicenseDate    = 2
)

// QualityScore rates how complete a lead is. Higher is better; ties are
// allowed. The score only orders merge candidates and is not shown to users.
func QualityScore(l lead.Lead) int {
	score := 0
	if l.BusinessName != "" {
		score += scoreBusinessName
	}
	if l.RoadAddress != "" {
		score += scoreRoadAddress
	}
	if l.LotAddress != "" {
		score += scoreLotAddress
	}
	if l.HasCoordinates() {
		score += scoreCoordinates
	}
	if l.HasSourceCoordinates() {
		score += scoreSourceCoords
	}
	if l.NearestStation != "" {
		score += scoreNearestStation
	}
	if l.Phone != "" {
		score += scorePhone
	}
	if l.BusinessRegistrationID != "" {
		score += scoreBizID
	}
	if l.MedicalSubject != "" {
		score += scoreMedicalSubject
	}
	if l.LicenseDate != "" {
		score += scoreLicenseDate
	}
	return score
}
