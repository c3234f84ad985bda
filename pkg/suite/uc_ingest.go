package suite

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/dimuzzo/geobench/pkg/bench"
	"github.com/dimuzzo/geobench/pkg/geoparquet"
	"github.com/dimuzzo/geobench/pkg/osmbuild"
	"github.com/dimuzzo/geobench/pkg/raster"
	"github.com/dimuzzo/geobench/pkg/vector"
)

// run executes one benchmarked operation; a cold-start failure is
// logged and skipped so one unavailable engine does not sink the whole
// suite.
func (s *Suite) run(ctx context.Context, spec bench.RunSpec) error {
	if err := s.runner.Run(ctx, spec); err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.logger.Warn("operation failed",
			zap.String("technology", spec.Op.Technology),
			zap.String("operation", spec.Op.Description),
			zap.Error(err))
	}
	return nil
}

func (s *Suite) runIngestion(ctx context.Context, city City, boundary orb.Geometry) error {
	shp := s.cfg.ShapefilePath()
	shpDataset := "comuni_istat"

	if s.haveDataset(shp) {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCVectorIngestion,
				Technology:  TechDuckDB,
				Description: "Load municipalities shapefile with ST_Read",
				Dataset:     shpDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				count, err := s.duck.IngestShapefile(ctx, shp)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Ingested %d municipalities.", count), nil
			},
		}); err != nil {
			return err
		}

		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCVectorIngestion,
				Technology:  TechVector,
				Description: "Load municipalities shapefile via OGR",
				Dataset:     shpDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				ds, err := vector.LoadOGR(shpDataset, shp)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Read %d municipalities.", ds.Len()), nil
			},
		}); err != nil {
			return err
		}
	}

	rasterPath := s.cfg.RasterPath()
	rasterDataset := s.cfg.RasterName
	if s.haveDataset(rasterPath) {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCRasterIngestion,
				Technology:  TechRaster,
				Description: "Open population GeoTIFF",
				Dataset:     rasterDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				r, err := raster.Open(rasterPath, s.logger)
				if err != nil {
					return "", err
				}
				info := r.Info()
				if err := r.Close(); err != nil {
					return "", err
				}
				return fmt.Sprintf("Opened raster: %s.", info), nil
			},
		}); err != nil {
			return err
		}
	}
	if err := s.unsupported(UCRasterIngestion, TechDuckDB, "Open population GeoTIFF",
		rasterDataset, "Technology not supported for raster data."); err != nil {
		return err
	}

	return s.runOSMIngestion(ctx, city, boundary)
}

// runOSMIngestion covers ingestion and boundary filtering of the PBF
// in one step per engine, since neither engine separates the two.
func (s *Suite) runOSMIngestion(ctx context.Context, city City, boundary orb.Geometry) error {
	pbf := s.cfg.PBFPath()
	if !s.haveDataset(pbf) {
		return nil
	}
	pbfDataset := s.cfg.PBFFile
	buildingsPath := s.datasetPath(city, "buildings")

	var buildings []osmbuild.Building
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCOSM,
			Technology:  TechOSM,
			Description: "Reconstruct building polygons from PBF (two passes)",
			Dataset:     pbfDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			collector := osmbuild.NewCollector()
			if err := collector.CollectIDs(ctx, pbf); err != nil {
				return "", err
			}
			assembler := osmbuild.NewAssembler(collector)
			if err := assembler.Scan(ctx, pbf); err != nil {
				return "", err
			}
			filtered, err := osmbuild.FilterByBoundary(assembler.Buildings(), boundary)
			if err != nil {
				return "", err
			}
			buildings = filtered
			return fmt.Sprintf("Reconstructed %d buildings inside the boundary.", len(buildings)), nil
		},
		Artifact: func() (string, error) {
			features := make([]geoparquet.Feature, len(buildings))
			for i, b := range buildings {
				features[i] = geoparquet.Feature{ID: b.ID, Geometry: b.Geometry, Properties: b.Tags}
			}
			if err := geoparquet.Write(buildingsPath, features); err != nil {
				return "", err
			}
			return buildingsPath, nil
		},
	}); err != nil {
		return err
	}

	wktBoundary := boundaryWKT(boundary)
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCOSM,
			Technology:  TechDuckDB,
			Description: "Count building ways in boundary with ST_ReadOSM",
			Dataset:     pbfDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			count, err := s.duck.CountBuildings(ctx, pbf, wktBoundary)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d building ways with a node inside the boundary (node approximation).", count), nil
		},
	}); err != nil {
		return err
	}

	if s.pg == nil {
		s.logger.Info("postgis not configured, skipping", zap.String("use_case", UCOSM))
		return nil
	}
	return s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCOSM,
			Technology:  TechPostGIS,
			Description: "Extract building polygons intersecting the boundary",
			Dataset:     "planet_osm_polygon",
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			count, err := s.pg.ExtractBuildings(ctx, wktBoundary)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Extracted %d building polygons.", count), nil
		},
	})
}

func (s *Suite) runFiltering(ctx context.Context, city City, boundary orb.Geometry) error {
	shp := s.cfg.ShapefilePath()
	shpDataset := "comuni_istat"
	region := city.RegionCode

	if err := os.MkdirAll(s.cfg.ProcessedDataDir, 0755); err != nil {
		return err
	}

	if s.haveDataset(shp) {
		// The attribute filter assumes the table exists; ingest once
		// outside the timed loop.
		if _, err := s.duck.IngestShapefile(ctx, shp); err != nil {
			s.logger.Warn("duckdb pre-ingestion failed", zap.Error(err))
		} else {
			exportPath := s.datasetPath(city, "region_filter")
			if err := s.run(ctx, bench.RunSpec{
				Op: bench.Operation{
					UseCase:     UCVectorFiltering,
					Technology:  TechDuckDB,
					Description: fmt.Sprintf("Filter municipalities by region code %d", region),
					Dataset:     shpDataset,
				},
				Runs: s.cfg.Runs,
				Fn: func(ctx context.Context) (string, error) {
					rows, err := s.duck.FilterByRegion(ctx, region)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("%d municipalities in region %d.", len(rows), region), nil
				},
				Artifact: func() (string, error) {
					if err := s.duck.ExportFilteredRegion(ctx, region, exportPath); err != nil {
						return "", err
					}
					return exportPath, nil
				},
			}); err != nil {
				return err
			}
		}

		if ds, err := vector.LoadOGR(shpDataset, shp); err != nil {
			s.logger.Warn("shapefile load failed", zap.Error(err))
		} else {
			regionValue := strconv.Itoa(region)
			filteredPath := s.datasetPath(city, "region_filter_vec")
			var filtered *vector.Dataset
			if err := s.run(ctx, bench.RunSpec{
				Op: bench.Operation{
					UseCase:     UCVectorFiltering,
					Technology:  TechVector,
					Description: fmt.Sprintf("Filter municipalities by region code %d", region),
					Dataset:     shpDataset,
				},
				Runs: s.cfg.Runs,
				Fn: func(ctx context.Context) (string, error) {
					filtered = ds.FilterByProperty("COD_REG", regionValue)
					return fmt.Sprintf("%d municipalities in region %d.", filtered.Len(), region), nil
				},
				Artifact: func() (string, error) {
					if err := geoparquet.Write(filteredPath, filtered.Features); err != nil {
						return "", err
					}
					return filteredPath, nil
				},
			}); err != nil {
				return err
			}
		}
	}

	if s.pg != nil {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCVectorFiltering,
				Technology:  TechPostGIS,
				Description: fmt.Sprintf("Filter municipalities by region code %d", region),
				Dataset:     shpDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				count, err := s.pg.FilterByRegion(ctx, region)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d municipalities in region %d.", count, region), nil
			},
		}); err != nil {
			return err
		}
	}

	return s.runRasterClip(ctx, city, boundary)
}

func (s *Suite) runRasterClip(ctx context.Context, city City, boundary orb.Geometry) error {
	rasterPath := s.cfg.RasterPath()
	rasterDataset := s.cfg.RasterName

	if s.haveDataset(rasterPath) {
		clipPath := s.datasetPath(city, "raster_clip")
		clipPath = clipPath[:len(clipPath)-len(".geoparquet")] + ".tif"

		var artifact string
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCRasterFiltering,
				Technology:  TechRaster,
				Description: "Clip population raster to the city boundary",
				Dataset:     rasterDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				r, err := raster.Open(rasterPath, s.logger)
				if err != nil {
					return "", err
				}
				defer r.Close()
				// the boundary is lon/lat; the grid defines its own CRS
				clipBoundary, err := r.ToRasterCRS(boundary)
				if err != nil {
					return "", err
				}
				artifact, err = r.Clip(ctx, clipBoundary[0], clipPath)
				if err != nil {
					return "", err
				}
				return "Clipped raster to the boundary.", nil
			},
			Artifact: func() (string, error) { return artifact, nil },
		}); err != nil {
			return err
		}

		if s.pg != nil {
			wktBoundary := boundaryWKT(boundary)
			if err := s.run(ctx, bench.RunSpec{
				Op: bench.Operation{
					UseCase:     UCRasterFiltering,
					Technology:  TechPostGIS,
					Description: "Clip raster tiles to the city boundary",
					Dataset:     rasterDataset,
				},
				Runs: s.cfg.Runs,
				Fn: func(ctx context.Context) (string, error) {
					tiles, err := s.pg.ClipRaster(ctx, wktBoundary)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("Clipped %d raster tiles.", tiles), nil
				},
			}); err != nil {
				return err
			}
		}
	}

	return s.unsupported(UCRasterFiltering, TechDuckDB, "Clip population raster to the city boundary",
		rasterDataset, "Technology not supported for raster data.")
}
