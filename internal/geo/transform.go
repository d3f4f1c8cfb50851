// Package geo converts LOCALDATA source coordinates to WGS84 and finds the
// nearest subway station.
package geo

import "math"

// Bessel 1841 ellipsoid.
const (
	besselA = 6377397.155
	besselF = 1 / 299.1528128
)

// WGS84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
)

// EPSG:2097 (Korean 1985 / Modified Central Belt) projection parameters.
const (
	tmLat0     = 38.0
	tmLon0     = 127.0028902777778
	tmScale    = 1.0
	tmFalseE   = 200000.0
	tmFalseN   = 500000.0
	arcsecond  = math.Pi / (180 * 3600)
	ecefRounds = 10
)

// Helmert parameters from Korean 1985 to WGS84 (position vector convention):
// translations in metres, rotations in arcseconds, scale in ppm.
var korean1985ToWGS84 = [7]float64{-115.80, 474.99, 674.11, 1.16, -2.31, -1.63, 6.43}

// FromKorean1985 converts an EPSG:2097 easting/northing (metres) to WGS84
// latitude and longitude in degrees.
func FromKorean1985(x, y float64) (lat, lon float64) {
	phi, lambda := inverseTM(x, y)
	X, Y, Z := toECEF(phi, lambda, besselA, besselF)
	X, Y, Z = helmert(X, Y, Z, korean1985ToWGS84)
	phi, lambda = fromECEF(X, Y, Z, wgs84A, wgs84F)
	return phi * 180 / math.Pi, lambda * 180 / math.Pi
}

// meridianArc is the distance along the Bessel meridian from the equator to phi.
func meridianArc(phi, e2 float64) float64 {
	e4 := e2 * e2
	e6 := e4 * e2
	return besselA * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// inverseTM applies the Snyder inverse Transverse Mercator series on the
// Bessel ellipsoid. Results are in radians.
func inverseTM(x, y float64) (phi, lambda float64) {
	e2 := 2*besselF - besselF*besselF
	ep2 := e2 / (1 - e2)
	e4 := e2 * e2
	e6 := e4 * e2

	lat0 := tmLat0 * math.Pi / 180
	lon0 := tmLon0 * math.Pi / 180

	m := meridianArc(lat0, e2) + (y-tmFalseN)/tmScale
	mu := m / (besselA * (1 - e2/4 - 3*e4/64 - 5*e6/256))

	sq := math.Sqrt(1 - e2)
	e1 := (1 - sq) / (1 + sq)
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin1, cos1, tan1 := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	c1 := ep2 * cos1 * cos1
	t1 := tan1 * tan1
	n1 := besselA / math.Sqrt(1-e2*sin1*sin1)
	r1 := besselA * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := (x - tmFalseE) / (n1 * tmScale)

	phi = phi1 - (n1*tan1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lambda = lon0 + (d-
		(1+2*t1+c1)*math.Pow(d, 3)/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cos1
	return phi, lambda
}

func toECEF(phi, lambda, a, f float64) (x, y, z float64) {
	e2 := 2*f - f*f
	sinPhi := math.Sin(phi)
	n := a / math.Sqrt(1-e2*sinPhi*sinPhi)
	x = n * math.Cos(phi) * math.Cos(lambda)
	y = n * math.Cos(phi) * math.Sin(lambda)
	z = n * (1 - e2) * sinPhi
	return x, y, z
}

func helmert(x, y, z float64, p [7]float64) (float64, float64, float64) {
	tx, ty, tz := p[0], p[1], p[2]
	rx, ry, rz := p[3]*arcsecond, p[4]*arcsecond, p[5]*arcsecond
	s := 1 + p[6]*1e-6
	return tx + s*(x-rz*y+ry*z),
		ty + s*(rz*x+y-rx*z),
		tz + s*(-ry*x+rx*y+z)
}

func fromECEF(x, y, z, a, f float64) (phi, lambda float64) {
	e2 := 2*f - f*f
	lambda = math.Atan2(y, x)
	p := math.Hypot(x, y)
	phi = math.Atan2(z, p*(1-e2))
	for range ecefRounds {
		sinPhi := math.Sin(phi)
		n := a / math.Sqrt(1-e2*sinPhi*sinPhi)
		h := p/math.Cos(phi) - n
		phi = math.Atan2(z, p*(1-e2*n/(n+h)))
	}
	return phi, lambda
}
