package main

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// loadCollection reads every feature geometry from a GeoJSON feature collection.
func loadCollection(path string) (orb.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal feature collection %s: %w", path, err)
	}

	var collection orb.Collection
	for _, f := range fc.Features {
		if f.Geometry != nil {
			collection = append(collection, f.Geometry)
		}
	}

	return collection, nil
}
