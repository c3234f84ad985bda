package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config collects everything the benchmark drivers need: where the raw
// and processed datasets live, how many runs to execute, and how to
// reach the external services (PostGIS, Nominatim).
type Config struct {
	Place   string `mapstructure:"place" validate:"required"`
	Runs    int    `mapstructure:"runs" validate:"min=1"`
	Workers int    `mapstructure:"workers" validate:"min=1"`

	RawDataDir       string `mapstructure:"raw_data_dir" validate:"required"`
	ProcessedDataDir string `mapstructure:"processed_data_dir" validate:"required"`
	ResultsDir       string `mapstructure:"results_dir" validate:"required"`

	PBFFile       string `mapstructure:"pbf_file" validate:"required"`
	ShapefileName string `mapstructure:"shapefile" validate:"required"`
	RasterName    string `mapstructure:"raster" validate:"required"`

	PostgresDSN string `mapstructure:"postgres_dsn"`

	NominatimEndpoint string `mapstructure:"nominatim_endpoint" validate:"required,url"`
	BoundaryCache     string `mapstructure:"boundary_cache" validate:"required"`

	LogLevel      int    `mapstructure:"log_level"`
	LogTimeFormat string `mapstructure:"log_time_format"`
}

func (c *Config) PBFPath() string {
	return filepath.Join(c.RawDataDir, c.PBFFile)
}

func (c *Config) ShapefilePath() string {
	return filepath.Join(c.RawDataDir, c.ShapefileName)
}

func (c *Config) RasterPath() string {
	return filepath.Join(c.RawDataDir, "raster", c.RasterName)
}

func (c *Config) ResultsFile() string {
	return filepath.Join(c.ResultsDir, "benchmark_results.csv")
}

func (c *Config) RunLogFile() string {
	return filepath.Join(c.ResultsDir, "run_log.jsonl.zst")
}

func New(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("GEOBENCH")
	viper.AutomaticEnv()

	viper.SetDefault("place", "Milan, Italy")
	viper.SetDefault("runs", 100)
	viper.SetDefault("workers", 4)
	viper.SetDefault("raw_data_dir", "data/raw")
	viper.SetDefault("processed_data_dir", "data/processed")
	viper.SetDefault("results_dir", "results")
	viper.SetDefault("pbf_file", "lombardy-latest.osm.pbf")
	viper.SetDefault("shapefile", "comuni_istat/Com01012025_WGS84.shp")
	viper.SetDefault("raster", "GHS_POP_ITALY_100m.tif")
	viper.SetDefault("nominatim_endpoint", "https://nominatim.openstreetmap.org")
	viper.SetDefault("boundary_cache", "data/boundary_cache.db")
	viper.SetDefault("log_level", 1)
	viper.SetDefault("log_time_format", time.RFC3339Nano)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// no config file is fine, defaults plus env cover everything
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
