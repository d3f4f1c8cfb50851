package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRIDWGS84 is the PostGIS SRID for WGS84 longitude/latitude.
const SRIDWGS84 = 4326

// EncodePoint returns an EWKB point (SRID 4326, lon/lat order) for a
// PostGIS geometry column.
func EncodePoint(lat, lon float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRIDWGS84)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point")
	}
	return data, nil
}

// DecodePoint parses an EWKB point back into latitude and longitude.
func DecodePoint(data []byte) (lat, lon float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geo: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("geo: expected point, got %T", g)
	}
	return p.Y(), p.X(), nil
}
