package suite

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/dimuzzo/geobench/pkg/bench"
	"github.com/dimuzzo/geobench/pkg/geoparquet"
	"github.com/dimuzzo/geobench/pkg/osmbuild"
	"github.com/dimuzzo/geobench/pkg/vector"
)

var extractClasses = []osmbuild.FeatureClass{
	osmbuild.Restaurants,
	osmbuild.BusStops,
	osmbuild.Trees,
	osmbuild.Hospitals,
	osmbuild.Parks,
	osmbuild.ResidentialStreets,
	osmbuild.Neighborhoods,
}

// ensureExtracted materializes the tag-filtered datasets the analysis
// and join use cases consume, extracting from the PBF only when a file
// is missing.
func (s *Suite) ensureExtracted(ctx context.Context, city City, boundary orb.Geometry) error {
	missing := false
	for _, class := range extractClasses {
		if _, err := os.Stat(s.datasetPath(city, class.Name)); err != nil {
			missing = true
			break
		}
	}
	if !missing {
		return nil
	}

	pbf := s.cfg.PBFPath()
	if _, err := os.Stat(pbf); err != nil {
		return fmt.Errorf("cannot extract datasets, PBF missing: %w", err)
	}
	s.logger.Info("extracting analysis datasets from PBF", zap.String("city", city.Slug))

	byClass, err := osmbuild.Extract(ctx, pbf, boundary, extractClasses...)
	if err != nil {
		return err
	}
	for _, class := range extractClasses {
		features := byClass[class.Name]
		rows := make([]geoparquet.Feature, len(features))
		for i, f := range features {
			rows[i] = geoparquet.Feature{ID: f.ID, Geometry: f.Geometry, Properties: f.Tags}
		}
		path := s.datasetPath(city, class.Name)
		if err := geoparquet.Write(path, rows); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		s.logger.Info("dataset written",
			zap.String("class", class.Name), zap.Int("features", len(rows)))
	}
	return nil
}

// ensureBuildings reconstructs the buildings dataset outside the timed
// loop when the ingestion use case has not produced it yet.
func (s *Suite) ensureBuildings(ctx context.Context, city City, boundary orb.Geometry) (string, error) {
	path := s.datasetPath(city, "buildings")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	pbf := s.cfg.PBFPath()
	collector := osmbuild.NewCollector()
	if err := collector.CollectIDs(ctx, pbf); err != nil {
		return "", err
	}
	assembler := osmbuild.NewAssembler(collector)
	if err := assembler.Scan(ctx, pbf); err != nil {
		return "", err
	}
	buildings, err := osmbuild.FilterByBoundary(assembler.Buildings(), boundary)
	if err != nil {
		return "", err
	}

	features := make([]geoparquet.Feature, len(buildings))
	for i, b := range buildings {
		features[i] = geoparquet.Feature{ID: b.ID, Geometry: b.Geometry, Properties: b.Tags}
	}
	if err := geoparquet.Write(path, features); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Suite) runSingleTable(ctx context.Context, city City, boundary orb.Geometry) error {
	buildingsPath, err := s.ensureBuildings(ctx, city, boundary)
	if err != nil {
		return err
	}
	if err := s.ensureExtracted(ctx, city, boundary); err != nil {
		return err
	}

	buildings, err := vector.LoadGeoParquet("buildings", buildingsPath)
	if err != nil {
		return err
	}
	restaurantsPath := s.datasetPath(city, "restaurants")
	busStopsPath := s.datasetPath(city, "bus_stops")
	restaurants, err := vector.LoadGeoParquet("restaurants", restaurantsPath)
	if err != nil {
		return err
	}
	busStops, err := vector.LoadGeoParquet("bus_stops", busStopsPath)
	if err != nil {
		return err
	}

	buildingsDataset := city.Slug + "_buildings"

	// Top 10 building areas.
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCSingleTable,
			Technology:  TechDuckDB,
			Description: "Top 10 largest building areas",
			Dataset:     buildingsDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			rows, err := s.duck.TopAreas(ctx, buildingsPath, 10)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Top areas computed over %d rows.", len(rows)), nil
		},
	}); err != nil {
		return err
	}
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCSingleTable,
			Technology:  TechVector,
			Description: "Top 10 largest building areas",
			Dataset:     buildingsDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			rows, err := vector.TopAreas(buildings, 10)
			if err != nil {
				return "", err
			}
			note := "No buildings."
			if len(rows) > 0 {
				note = fmt.Sprintf("Largest building: %.1f m2.", rows[0].AreaSqm)
			}
			return note, nil
		},
	}); err != nil {
		return err
	}
	if s.pg != nil {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCSingleTable,
				Technology:  TechPostGIS,
				Description: "Top 10 largest building areas",
				Dataset:     buildingsDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				rows, err := s.pg.TopAreas(ctx, buildingsDataset, 10)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Top areas computed over %d rows.", len(rows)), nil
			},
		}); err != nil {
			return err
		}
	}

	// Total 10 m buffered area.
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCSingleTable,
			Technology:  TechDuckDB,
			Description: "Total area of 10 m buffers around buildings",
			Dataset:     buildingsDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			total, err := s.duck.TotalBufferedArea(ctx, buildingsPath, 10)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Total buffered area %.1f m2.", total), nil
		},
	}); err != nil {
		return err
	}
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCSingleTable,
			Technology:  TechVector,
			Description: "Total area of 10 m buffers around buildings",
			Dataset:     buildingsDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			total, err := vector.TotalBufferedArea(ctx, buildings, 10, s.cfg.Workers)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Total buffered area %.1f m2.", total), nil
		},
	}); err != nil {
		return err
	}
	if s.pg != nil {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCSingleTable,
				Technology:  TechPostGIS,
				Description: "Total area of 10 m buffers around buildings",
				Dataset:     buildingsDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				total, err := s.pg.TotalBufferedArea(ctx, buildingsDataset, 10)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Total buffered area %.1f m2.", total), nil
			},
		}); err != nil {
			return err
		}
	}

	// Restaurants far from bus stops.
	poiDataset := city.Slug + "_restaurants"
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCSingleTable,
			Technology:  TechDuckDB,
			Description: "Restaurants with no bus stop within 50 m",
			Dataset:     poiDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			rows, err := s.duck.RestaurantsAwayFromBusStops(ctx, restaurantsPath, busStopsPath, 50)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d restaurants without a nearby bus stop.", len(rows)), nil
		},
	}); err != nil {
		return err
	}
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCSingleTable,
			Technology:  TechVector,
			Description: "Restaurants with no bus stop within 50 m",
			Dataset:     poiDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			count, err := vector.RestaurantsAwayFromBusStops(restaurants, busStops, 50)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d restaurants without a nearby bus stop.", count), nil
		},
	}); err != nil {
		return err
	}
	if s.pg != nil {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCSingleTable,
				Technology:  TechPostGIS,
				Description: "Restaurants with no bus stop within 50 m",
				Dataset:     poiDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				count, err := s.pg.RestaurantsAwayFromBusStops(ctx,
					city.Slug+"_restaurants", city.Slug+"_bus_stops", 50)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d restaurants without a nearby bus stop.", count), nil
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Suite) runJoins(ctx context.Context, city City, boundary orb.Geometry) error {
	if err := s.ensureExtracted(ctx, city, boundary); err != nil {
		return err
	}

	paths := map[string]string{}
	datasets := map[string]*vector.Dataset{}
	for _, name := range []string{"neighborhoods", "restaurants", "hospitals", "residential_streets", "trees", "parks"} {
		path := s.datasetPath(city, name)
		ds, err := vector.LoadGeoParquet(name, path)
		if err != nil {
			return err
		}
		paths[name] = path
		datasets[name] = ds
	}
	wktBoundary := boundaryWKT(boundary)

	// Restaurants per neighborhood.
	joinDataset := city.Slug + "_neighborhoods"
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCJoin,
			Technology:  TechDuckDB,
			Description: "Restaurants per neighborhood",
			Dataset:     joinDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			rows, err := s.duck.RestaurantsPerNeighborhood(ctx, paths["neighborhoods"], paths["restaurants"])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Counted restaurants across %d neighborhoods.", len(rows)), nil
		},
	}); err != nil {
		return err
	}
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCJoin,
			Technology:  TechVector,
			Description: "Restaurants per neighborhood",
			Dataset:     joinDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			rows, err := vector.CountPointsPerZone(datasets["neighborhoods"], datasets["restaurants"])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Counted restaurants across %d neighborhoods.", len(rows)), nil
		},
	}); err != nil {
		return err
	}
	if s.pg != nil {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCJoin,
				Technology:  TechPostGIS,
				Description: "Restaurants per neighborhood",
				Dataset:     joinDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				rows, err := s.pg.RestaurantsPerNeighborhood(ctx,
					city.Slug+"_neighborhoods", city.Slug+"_restaurants")
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Counted restaurants across %d neighborhoods.", len(rows)), nil
			},
		}); err != nil {
			return err
		}
	}

	// Trees and street length near hospitals.
	chainDataset := city.Slug + "_hospitals"
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCJoin,
			Technology:  TechDuckDB,
			Description: "Trees near residential streets near hospitals",
			Dataset:     chainDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			trees, length, err := s.duck.TreesAndStreetsNearHospitals(ctx,
				paths["hospitals"], paths["residential_streets"], paths["trees"])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d trees along %.1f m of streets.", trees, length), nil
		},
	}); err != nil {
		return err
	}
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCJoin,
			Technology:  TechVector,
			Description: "Trees near residential streets near hospitals",
			Dataset:     chainDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			trees, length, err := vector.ProximityChain(
				datasets["hospitals"], datasets["residential_streets"], datasets["trees"], 100, 20)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d trees along %.1f m of streets.", trees, length), nil
		},
	}); err != nil {
		return err
	}
	if s.pg != nil {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCJoin,
				Technology:  TechPostGIS,
				Description: "Trees near residential streets near hospitals",
				Dataset:     chainDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				trees, length, err := s.pg.TreesAndStreetsNearHospitals(ctx,
					city.Slug+"_hospitals", city.Slug+"_residential_streets", city.Slug+"_trees")
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d trees along %.1f m of streets.", trees, length), nil
			},
		}); err != nil {
			return err
		}
	}

	// Area not covered by parks.
	parksDataset := city.Slug + "_parks"
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCJoin,
			Technology:  TechDuckDB,
			Description: "City area not covered by parks",
			Dataset:     parksDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			area, err := s.duck.AreaNotCoveredByParks(ctx, paths["parks"], wktBoundary)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Non-park area %.1f m2.", area), nil
		},
	}); err != nil {
		return err
	}
	if err := s.run(ctx, bench.RunSpec{
		Op: bench.Operation{
			UseCase:     UCJoin,
			Technology:  TechVector,
			Description: "City area not covered by parks",
			Dataset:     parksDataset,
		},
		Runs: s.cfg.Runs,
		Fn: func(ctx context.Context) (string, error) {
			area, err := vector.AreaNotCoveredByParks(datasets["parks"], boundary)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Non-park area %.1f m2.", area), nil
		},
	}); err != nil {
		return err
	}
	if s.pg != nil {
		if err := s.run(ctx, bench.RunSpec{
			Op: bench.Operation{
				UseCase:     UCJoin,
				Technology:  TechPostGIS,
				Description: "City area not covered by parks",
				Dataset:     parksDataset,
			},
			Runs: s.cfg.Runs,
			Fn: func(ctx context.Context) (string, error) {
				area, err := s.pg.AreaNotCoveredByParks(ctx, city.Slug+"_parks", wktBoundary)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Non-park area %.1f m2.", area), nil
			},
		}); err != nil {
			return err
		}
	}
	return nil
}
