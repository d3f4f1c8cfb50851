package geo

import (
	_ "embed"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed stations.yaml
var defaultStations []byte

// Station is a subway station location.
type Station struct {
	Name      string   `yaml:"name" json:"name"`
	Lines     []string `yaml:"lines" json:"lines"`
	Latitude  float64  `yaml:"lat" json:"latitude"`
	Longitude float64  `yaml:"lon" json:"longitude"`
}

// Match is the nearest station to a point.
type Match struct {
	Station  Station
	Distance float64 // metres
}

// StationIndex answers nearest-station queries over a fixed station list.
type StationIndex struct {
	stations []Station
}

// NewStationIndex builds an index over stations.
func NewStationIndex(stations []Station) *StationIndex {
	return &StationIndex{stations: stations}
}

// LoadStations reads a station YAML file, or the embedded Seoul list when
// path is empty.
func LoadStations(path string) (*StationIndex, error) {
	data := defaultStations
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: read stations %s", path)
		}
		data = b
	}

	var doc struct {
		Stations []Station `yaml:"stations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "geo: parse stations")
	}
	if len(doc.Stations) == 0 {
		return nil, eris.New("geo: station list is empty")
	}
	return NewStationIndex(doc.Stations), nil
}

// Len returns the number of indexed stations.
func (x *StationIndex) Len() int {
	return len(x.stations)
}

// Nearest returns the closest station to (lat, lon). With maxDistance > 0,
// stations further away than maxDistance metres are not matched.
func (x *StationIndex) Nearest(lat, lon, maxDistance float64) (Match, bool) {
	best := Match{Distance: math.Inf(1)}
	found := false
	for _, s := range x.stations {
		d := Haversine(lat, lon, s.Latitude, s.Longitude)
		if d < best.Distance {
			best = Match{Station: s, Distance: d}
			found = true
		}
	}
	if !found || (maxDistance > 0 && best.Distance > maxDistance) {
		return Match{}, false
	}
	return best, true
}
