package geo

// Station proximity classes.
const (
	ClassStationArea = "station_area"
	ClassWalkable    = "walkable"
	ClassNearby      = "nearby"
	ClassRemote      = "remote"
	ClassUnknown     = "unknown"
)

// Distance thresholds for classification (metres).
const (
	stationAreaThreshold = 500.0
	walkableThreshold    = 1000.0
	nearbyThreshold      = 2000.0
)

// Classify buckets a station distance for sales targeting. Rules:
//   - station_area: distance <= 500m
//   - walkable: distance <= 1km
//   - nearby: distance <= 2km
//   - remote: further away
//   - unknown: no station matched (nil distance)
func Classify(distance *float64) string {
	if distance == nil {
		return ClassUnknown
	}
	switch d := *distance; {
	case d <= stationAreaThreshold:
		return ClassStationArea
	case d <= walkableThreshold:
		return ClassWalkable
	case d <= nearbyThreshold:
		return ClassNearby
	default:
		return ClassRemote
	}
}
