// Package raster covers the vector-raster use case: GeoTIFF access
// through GDAL, clipping to a boundary and zonal sums over polygons.
package raster

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/project"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/dimuzzo/geobench/pkg/concurrent"
)

var registerOnce sync.Once

// Raster wraps an open GDAL dataset. Geometries passed to Clip and
// ZonalSum must be in the raster's own CRS; ToRasterCRS converts from
// WGS84, whatever projection the file ships in.
type Raster struct {
	ds     *godal.Dataset
	path   string
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Raster, error) {
	registerOnce.Do(godal.RegisterInternalDrivers)
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening raster %s: %w", path, err)
	}
	return &Raster{ds: ds, path: path, logger: logger}, nil
}

func (r *Raster) Close() error {
	return r.ds.Close()
}

// Info reports band count and dimensions, used in the result notes.
func (r *Raster) Info() string {
	st := r.ds.Structure()
	return fmt.Sprintf("%d band(s), %dx%d px", st.NBands, st.SizeX, st.SizeY)
}

// ToRasterCRS reprojects WGS84 geometries into the dataset's spatial
// reference, read from the file itself. The GHS population grids ship
// in Mollweide, so zone polygons cannot assume any fixed metric CRS.
func (r *Raster) ToRasterCRS(geoms ...orb.Geometry) ([]orb.Geometry, error) {
	dst := r.ds.SpatialRef()
	if dst == nil {
		return nil, fmt.Errorf("raster %s has no spatial reference", r.path)
	}
	src, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("creating WGS84 reference: %w", err)
	}
	defer src.Close()

	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("building transform to the CRS of %s: %w", r.path, err)
	}
	defer tr.Close()

	var trErr error
	out := make([]orb.Geometry, len(geoms))
	for i, g := range geoms {
		out[i] = project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
			x := []float64{p[0]}
			y := []float64{p[1]}
			if err := tr.TransformEx(x, y, nil, nil); err != nil && trErr == nil {
				trErr = err
			}
			return orb.Point{x[0], y[0]}
		})
	}
	if trErr != nil {
		return nil, fmt.Errorf("reprojecting to the CRS of %s: %w", r.path, trErr)
	}
	return out, nil
}

// Clip masks the first band to the boundary polygon and crops the
// result to the boundary's pixel envelope, writing a new GeoTIFF.
// Cells inside the envelope but outside the polygon become nodata.
func (r *Raster) Clip(ctx context.Context, boundary orb.Geometry, outPath string) (string, error) {
	gt, err := r.ds.GeoTransform()
	if err != nil {
		return "", fmt.Errorf("reading geotransform: %w", err)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return "", fmt.Errorf("rotated rasters are not supported: %s", r.path)
	}

	st := r.ds.Structure()
	x0, y0, width, height := pixelWindow(boundary.Bound(), gt, st.SizeX, st.SizeY)
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("boundary does not overlap %s", r.path)
	}

	band := r.ds.Bands()[0]
	nodata, hasNodata := band.NoData()
	fill := nodata
	if !hasNodata {
		fill = 0
	}

	buf := make([]float64, width*height)
	if err := band.Read(x0, y0, buf, width, height); err != nil {
		return "", fmt.Errorf("reading clip window: %w", err)
	}

	geomWKB, err := wkb.Marshal(boundary)
	if err != nil {
		return "", fmt.Errorf("encoding boundary: %w", err)
	}
	gctx := geos.NewContext()
	g, err := gctx.NewGeomFromWKB(geomWKB)
	if err != nil {
		return "", fmt.Errorf("boundary: %w", err)
	}
	g.Prepare()

	for row := 0; row < height; row++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		cy := gt[3] + (float64(y0+row)+0.5)*gt[5]
		for col := 0; col < width; col++ {
			cx := gt[0] + (float64(x0+col)+0.5)*gt[1]
			if !g.Contains(gctx.NewPoint([]float64{cx, cy})) {
				buf[row*width+col] = fill
			}
		}
	}

	out, err := godal.Create(godal.GTiff, outPath, 1, st.DataType, width, height)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", outPath, err)
	}
	if err := out.SetGeoTransform([6]float64{
		gt[0] + float64(x0)*gt[1], gt[1], 0,
		gt[3] + float64(y0)*gt[5], 0, gt[5],
	}); err != nil {
		out.Close()
		return "", err
	}
	// the source may carry no CRS at all, e.g. plain test grids
	_ = out.SetSpatialRef(r.ds.SpatialRef())

	outBand := out.Bands()[0]
	if err := outBand.SetNoData(fill); err != nil {
		out.Close()
		return "", err
	}
	if err := outBand.Write(0, 0, buf, width, height); err != nil {
		out.Close()
		return "", fmt.Errorf("writing %s: %w", outPath, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return outPath, nil
}

// ZonalResult is the summed band value for one polygon.
type ZonalResult struct {
	FeatureID int64
	Sum       float64
	CellCount int
}

type zonalJob struct {
	id   int64
	geom orb.Geometry
}

// ZonalSum computes, for every polygon, the sum of first-band values
// whose cell center falls inside the polygon. Nodata cells and the
// sentinel values above maxValid are excluded, matching the
// over-range pixels present in the GHS population tiles.
func (r *Raster) ZonalSum(ctx context.Context, ids []int64, polygons []orb.Geometry, workers int) ([]ZonalResult, error) {
	if len(ids) != len(polygons) {
		return nil, fmt.Errorf("ids/polygons length mismatch: %d vs %d", len(ids), len(polygons))
	}

	gt, err := r.ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("reading geotransform: %w", err)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return nil, fmt.Errorf("rotated rasters are not supported: %s", r.path)
	}

	band := r.ds.Bands()[0]
	st := r.ds.Structure()
	nodata, hasNodata := band.NoData()

	// Band reads are serialized; the GEOS point-in-polygon tests are
	// what the pool parallelizes.
	var readMu sync.Mutex

	pool := concurrent.NewWorkerPool[zonalJob, ZonalResult](workers,
		func(ctx context.Context, job zonalJob) (ZonalResult, error) {
			return r.zonalOne(ctx, job, gt, band, st, nodata, hasNodata, &readMu)
		})

	jobs := make([]zonalJob, len(ids))
	for i := range ids {
		jobs[i] = zonalJob{id: ids[i], geom: polygons[i]}
	}
	return pool.Process(ctx, jobs)
}

const maxValid = 1e10

func (r *Raster) zonalOne(ctx context.Context, job zonalJob, gt [6]float64,
	band godal.Band, st godal.DatasetStructure, nodata float64, hasNodata bool,
	readMu *sync.Mutex) (ZonalResult, error) {

	res := ZonalResult{FeatureID: job.id}

	geomWKB, err := wkb.Marshal(job.geom)
	if err != nil {
		return res, fmt.Errorf("encoding polygon %d: %w", job.id, err)
	}
	gctx := geos.NewContext()
	g, err := gctx.NewGeomFromWKB(geomWKB)
	if err != nil {
		return res, fmt.Errorf("polygon %d: %w", job.id, err)
	}
	g.Prepare()

	x0, y0, width, height := pixelWindow(job.geom.Bound(), gt, st.SizeX, st.SizeY)
	if width <= 0 || height <= 0 {
		return res, nil
	}

	buf := make([]float64, width*height)
	readMu.Lock()
	err = band.Read(x0, y0, buf, width, height)
	readMu.Unlock()
	if err != nil {
		return res, fmt.Errorf("reading window for polygon %d: %w", job.id, err)
	}

	for row := 0; row < height; row++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cy := gt[3] + (float64(y0+row)+0.5)*gt[5]
		for col := 0; col < width; col++ {
			v := buf[row*width+col]
			if hasNodata && v == nodata {
				continue
			}
			if v <= 0 || v >= maxValid || math.IsNaN(v) {
				continue
			}
			cx := gt[0] + (float64(x0+col)+0.5)*gt[1]
			pt := gctx.NewPoint([]float64{cx, cy})
			if g.Contains(pt) {
				res.Sum += v
				res.CellCount++
			}
		}
	}
	return res, nil
}

// pixelWindow maps a bound in raster CRS coordinates to the covered
// pixel rectangle, clamped to the raster edges. gt[5] is negative for
// north-up rasters.
func pixelWindow(b orb.Bound, gt [6]float64, sizeX, sizeY int) (x0, y0, width, height int) {
	px0 := int(math.Floor((b.Min[0] - gt[0]) / gt[1]))
	px1 := int(math.Ceil((b.Max[0] - gt[0]) / gt[1]))
	py0 := int(math.Floor((b.Max[1] - gt[3]) / gt[5]))
	py1 := int(math.Ceil((b.Min[1] - gt[3]) / gt[5]))

	px0, px1 = clamp(px0, 0, sizeX), clamp(px1, 0, sizeX)
	py0, py1 = clamp(py0, 0, sizeY), clamp(py1, 0, sizeY)
	return px0, py0, px1 - px0, py1 - py0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
