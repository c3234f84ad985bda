package suite

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/dimuzzo/geobench/pkg/bench"
	"github.com/dimuzzo/geobench/pkg/raster"
	"github.com/dimuzzo/geobench/pkg/vector"
)

// runZonal is the vector-raster use case: population per municipality
// from the GHS grid, zone polygons taken from the region-filtered
// shapefile.
func (s *Suite) runZonal(ctx context.Context, city City, boundary orb.Geometry) error {
	rasterPath := s.cfg.RasterPath()
	rasterDataset := s.cfg.RasterName

	if err := s.unsupported(UCZonal, TechDuckDB, "Population per municipality (zonal sum)",
		rasterDataset, "Technology not supported for raster data."); err != nil {
		return err
	}

	if s.haveDataset(rasterPath) && s.haveDataset(s.cfg.ShapefilePath()) {
		municipalities, err := vector.LoadOGR("comuni_istat", s.cfg.ShapefilePath())
		if err != nil {
			return err
		}
		zones := municipalities.FilterByProperty("COD_REG", strconv.Itoa(city.RegionCode))

		ids := make([]int64, zones.Len())
		polygons := make([]orb.Geometry, zones.Len())
		for i, f := range zones.Features {
			ids[i] = f.ID
			polygons[i] = f.Geometry
		}

		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCZonal,
				Technology:  TechRaster,
				Description: "Population per municipality (zonal sum)",
				Dataset:     rasterDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				r, err := raster.Open(rasterPath, s.logger)
				if err != nil {
					return "", err
				}
				defer r.Close()
				// zone polygons are lon/lat; the grid defines its own CRS
				rasterZones, err := r.ToRasterCRS(polygons...)
				if err != nil {
					return "", err
				}
				results, err := r.ZonalSum(ctx, ids, rasterZones, s.cfg.Workers)
				if err != nil {
					return "", err
				}
				var total float64
				for _, res := range results {
					total += res.Sum
				}
				return fmt.Sprintf("Population %.0f across %d municipalities.", total, len(results)), nil
			},
		}); err != nil {
			return err
		}
	}

	if s.pg == nil {
		return nil
	}
	return s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCZonal,
			Technology:  TechPostGIS,
			Description: "Population per municipality (zonal sum)",
			Dataset:     rasterDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			rows, total, err := s.pg.PopulationPerMunicipality(ctx, city.RegionCode)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Population %.0f across %d municipalities.", total, len(rows)), nil
		},
	})
}
