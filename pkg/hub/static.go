// pkg/hub/static.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hub

import (
	"bytes"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"

	lru "github.com/hashicorp/golang-lru/v2"
	shp "github.com/jonas-p/go-shp"
	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var staticResourceNames = []string{"boundaries", "topologies", "geos"}

// StaticData serves the read-only geospatial artefacts next to the hub:
// a boundaries GeoJSON file (possibly zstd compressed), a directory of
// shapefiles served as GeoJSON, and a raw OSM extract. Loaded resources
// are cached keyed by their on-disk modification time, so a replaced
// file is picked up on the next request.
type StaticData struct {
	lg    *log.Logger
	paths map[string]string
	cache *lru.Cache[string, *staticResource]
}

type staticResource struct {
	ModTime     time.Time
	ContentType string
	Body        []byte
}

func NewStaticData(boundariesFile, topologiesDir, osmPbf string, lg *log.Logger) (*StaticData, error) {
	cache, err := lru.New[string, *staticResource](8)
	if err != nil {
		return nil, err
	}
	return &StaticData{
		lg: lg,
		paths: map[string]string{
			"boundaries": boundariesFile,
			"topologies": topologiesDir,
			"geos":       osmPbf,
		},
		cache: cache,
	}, nil
}

// modTime is the resource's cache key source: the last-write time of the
// backing file, or the newest file in the directory for topologies.
func (sd *StaticData) modTime(res string) (time.Time, error) {
	path := sd.paths[res]
	if path == "" {
		return time.Time{}, os.ErrNotExist
	}

	if res == "topologies" {
		var latest time.Time
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.ModTime().After(latest) {
				latest = info.ModTime()
			}
			return nil
		})
		return latest, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (sd *StaticData) load(res string) (*staticResource, error) {
	mt, err := sd.modTime(res)
	if err != nil {
		return nil, err
	}

	key := res + "|" + mt.UTC().Format(time.RFC3339Nano)
	if r, ok := sd.cache.Get(key); ok {
		return r, nil
	}

	var r *staticResource
	switch res {
	case "boundaries":
		r, err = sd.loadBoundaries()
	case "topologies":
		r, err = sd.loadTopologies()
	case "geos":
		r, err = sd.loadGeos()
	default:
		return nil, os.ErrNotExist
	}
	if err != nil {
		return nil, err
	}

	r.ModTime = mt
	sd.cache.Add(key, r)
	sd.lg.Infof("loaded %s: %d bytes, modified %v", res, len(r.Body), mt)
	return r, nil
}

func (sd *StaticData) loadBoundaries() (*staticResource, error) {
	b, err := os.ReadFile(sd.paths["boundaries"])
	if err != nil {
		return nil, err
	}
	if filepath.Ext(sd.paths["boundaries"]) == ".zst" {
		if b, err = decompressZstd(b); err != nil {
			return nil, err
		}
	}
	// Validate before serving; a corrupt boundaries file should fail
	// loudly here rather than on every client.
	if _, err := geojson.UnmarshalFeatureCollection(b); err != nil {
		return nil, err
	}
	return &staticResource{ContentType: "application/geo+json", Body: b}, nil
}

func (sd *StaticData) loadTopologies() (*staticResource, error) {
	matches, err := filepath.Glob(filepath.Join(sd.paths["topologies"], "*.shp"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	collections := make(map[string]*geojson.FeatureCollection)
	for _, path := range matches {
		fc, err := convertShapefile(path)
		if err != nil {
			sd.lg.Warnf("%s: %v", path, err)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), ".shp")
		collections[name] = fc
	}

	b, err := json.Marshal(collections)
	if err != nil {
		return nil, err
	}
	return &staticResource{ContentType: "application/json", Body: b}, nil
}

func (sd *StaticData) loadGeos() (*staticResource, error) {
	b, err := os.ReadFile(sd.paths["geos"])
	if err != nil {
		return nil, err
	}
	return &staticResource{ContentType: "application/octet-stream", Body: b}, nil
}

func (sd *StaticData) timestampHandler(res string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mt, err := sd.modTime(res)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mt)
	}
}

func (sd *StaticData) contentHandler(res string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := sd.load(res)
		if err != nil {
			if os.IsNotExist(err) {
				http.NotFound(w, r)
			} else {
				sd.lg.Errorf("%s: %v", res, err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", resource.ContentType)
		w.Write(resource.Body)
	}
}

func decompressZstd(b []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(b), zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// convertShapefile reads one shapefile and returns its shapes as a
// GeoJSON feature collection with the DBF attributes as properties.
func convertShapefile(path string) (*geojson.FeatureCollection, error) {
	shape, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer shape.Close()

	fields := shape.Fields()
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = f.String()
	}

	fc := geojson.NewFeatureCollection()
	for shape.Next() {
		n, p := shape.Shape()

		var geometry orb.Geometry
		switch s := p.(type) {
		case *shp.Null:
			continue
		case *shp.Point:
			geometry = orb.Point{s.X, s.Y}
		case *shp.PolyLine:
			geometry = convertPolyLine(s)
		case *shp.Polygon:
			geometry = convertPolygon(s)
		default:
			continue
		}

		f := geojson.NewFeature(geometry)
		for i, name := range fieldNames {
			f.Properties[name] = shape.ReadAttribute(n, i)
		}
		fc.Append(f)
	}
	if err := shape.Err(); err != nil {
		return nil, err
	}
	return fc, nil
}

func convertPolyLine(s *shp.PolyLine) orb.MultiLineString {
	var multiline orb.MultiLineString
	for i := 0; i < int(s.NumParts); i++ {
		start := s.Parts[i]
		end := s.NumPoints
		if i < int(s.NumParts)-1 {
			end = s.Parts[i+1]
		}

		var line orb.LineString
		for j := start; j < end; j++ {
			line = append(line, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		multiline = append(multiline, line)
	}
	return multiline
}

func convertPolygon(s *shp.Polygon) orb.Polygon {
	var poly orb.Polygon
	for i := 0; i < int(s.NumParts); i++ {
		start := s.Parts[i]
		end := s.NumPoints
		if i < int(s.NumParts)-1 {
			end = s.Parts[i+1]
		}

		var ring orb.Ring
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		poly = append(poly, ring)
	}
	return poly
}
