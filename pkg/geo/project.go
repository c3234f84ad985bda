package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// WGS84 / UTM zone 32N (EPSG:32632), the metric CRS every area, length
// and distance in the benchmarks is computed in. Forward transverse
// Mercator, USGS series form.
const (
	utmA  = 6378137.0
	utmF  = 1.0 / 298.257223563
	utmK0 = 0.9996
	utmFE = 500000.0
	utmFN = 0.0

	zone32CentralMeridian = 9.0
)

// ToUTM32N maps a lon/lat point to easting/northing meters.
func ToUTM32N(p orb.Point) orb.Point {
	lon := p[0] * math.Pi / 180
	lat := p[1] * math.Pi / 180
	lon0 := zone32CentralMeridian * math.Pi / 180

	e2 := utmF * (2 - utmF)
	ep2 := e2 / (1 - e2)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	tanLat := math.Tan(lat)

	n := utmA / math.Sqrt(1-e2*sinLat*sinLat)
	t := tanLat * tanLat
	c := ep2 * cosLat * cosLat
	a := cosLat * (lon - lon0)

	m := utmA * ((1-e2/4-3*e2*e2/64-5*e2*e2*e2/256)*lat -
		(3*e2/8+3*e2*e2/32+45*e2*e2*e2/1024)*math.Sin(2*lat) +
		(15*e2*e2/256+45*e2*e2*e2/1024)*math.Sin(4*lat) -
		(35*e2*e2*e2/3072)*math.Sin(6*lat))

	easting := utmFE + utmK0*n*(a+
		(1-t+c)*a*a*a/6+
		(5-18*t+t*t+72*c-58*ep2)*a*a*a*a*a/120)

	northing := utmFN + utmK0*(m+n*tanLat*(a*a/2+
		(5-t+9*c+4*c*c)*a*a*a*a/24+
		(61-58*t+t*t+600*c-330*ep2)*a*a*a*a*a*a/720))

	return orb.Point{easting, northing}
}

// ProjectToUTM32N projects any orb geometry into EPSG:32632.
func ProjectToUTM32N(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), ToUTM32N)
}

// DistanceUTM is the planar distance in meters between two already
// projected points.
func DistanceUTM(a, b orb.Point) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return math.Sqrt(dx*dx + dy*dy)
}
