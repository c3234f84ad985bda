// Package geoparquet reads and writes the harness's GeoParquet
// datasets: one WKB geometry column plus the feature id and a JSON
// properties column, with the standard "geo" file metadata so DuckDB
// and other GeoParquet readers pick the geometry column up.
package geoparquet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hangxie/parquet-go/v2/parquet"
	"github.com/hangxie/parquet-go/v2/reader"
	"github.com/hangxie/parquet-go/v2/source/local"
	"github.com/hangxie/parquet-go/v2/writer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Feature is one row of a dataset file.
type Feature struct {
	ID         int64
	Geometry   orb.Geometry
	Properties map[string]string
}

type featureRow struct {
	FeatureID  int64  `parquet:"name=feature_id, type=INT64"`
	Properties string `parquet:"name=properties, type=BYTE_ARRAY, convertedtype=UTF8"`
	Geometry   string `parquet:"name=geometry, type=BYTE_ARRAY, logicaltype=GEOMETRY"`
}

type geoColumn struct {
	Encoding      string   `json:"encoding"`
	GeometryTypes []string `json:"geometry_types"`
}

type geoMetadata struct {
	Version       string               `json:"version"`
	PrimaryColumn string               `json:"primary_column"`
	Columns       map[string]geoColumn `json:"columns"`
}

const parquetParallelism = 4

// Write stores features at path, overwriting any previous file.
func Write(path string, features []Feature) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating dataset directory: %w", err)
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(featureRow), parquetParallelism)
	if err != nil {
		return fmt.Errorf("creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, f := range features {
		geomWKB, err := wkb.Marshal(f.Geometry)
		if err != nil {
			return fmt.Errorf("encoding geometry of feature %d: %w", f.ID, err)
		}
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return fmt.Errorf("encoding properties of feature %d: %w", f.ID, err)
		}
		row := featureRow{
			FeatureID:  f.ID,
			Properties: string(props),
			Geometry:   string(geomWKB),
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("writing feature %d: %w", f.ID, err)
		}
	}

	meta, err := json.Marshal(geoMetadata{
		Version:       "1.1.0",
		PrimaryColumn: "geometry",
		Columns: map[string]geoColumn{
			"geometry": {Encoding: "WKB", GeometryTypes: []string{}},
		},
	})
	if err != nil {
		return err
	}
	metaValue := string(meta)
	pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{
		Key:   "geo",
		Value: &metaValue,
	})

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return nil
}

// Read loads a dataset file written by Write.
func Read(path string) ([]Feature, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(featureRow), parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("creating parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]featureRow, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	features := make([]Feature, 0, len(rows))
	for _, row := range rows {
		geom, err := wkb.Unmarshal([]byte(row.Geometry))
		if err != nil {
			return nil, fmt.Errorf("decoding geometry of feature %d: %w", row.FeatureID, err)
		}
		var props map[string]string
		if row.Properties != "" {
			if err := json.Unmarshal([]byte(row.Properties), &props); err != nil {
				return nil, fmt.Errorf("decoding properties of feature %d: %w", row.FeatureID, err)
			}
		}
		features = append(features, Feature{
			ID:         row.FeatureID,
			Geometry:   geom,
			Properties: props,
		})
	}
	return features, nil
}
