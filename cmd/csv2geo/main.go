// csv2geo converts a CSV of named points into a GeoJSON feature collection
// usable as slide data. Columns: name, type, lon, lat — or name, type, x, y
// in image-grid coordinates when --size is given.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/geo"

	"github.com/jessevdk/go-flags"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input  string  `short:"i" long:"in" description:"Input CSV file path. Reads from stdin if empty"`
	Output string  `short:"o" long:"out" description:"Output file path. Writes to stdout if empty"`
	Format string  `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Size   float64 `short:"s" long:"size" description:"Image size for grid coordinates. Zero means columns are lon/lat"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Read Input
	var in io.Reader = os.Stdin
	if opts.Input != "" {
		f, err := os.Open(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	fc, count, err := convert(in, opts.Size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error converting CSV: %v\n", err)
		os.Exit(1)
	}

	// marshal
	var outputData []byte
	if opts.Format == "yaml" {
		outputData, err = marshalYAML(fc)
	} else {
		outputData, err = json.MarshalIndent(fc, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, outputData, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Successfully converted %d points to %s (format: %s)\n", count, opts.Output, opts.Format)
	} else {
		fmt.Println(string(outputData))
	}
}

// convert reads CSV rows (name, type, lon|x, lat|y) into a feature
// collection. Rows with unparsable coordinates are reported and skipped.
func convert(in io.Reader, size float64) (*geojson.FeatureCollection, int, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = 4
	r.TrimLeadingSpace = true

	fc := geojson.NewFeatureCollection()
	count := 0
	first := true

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		// optional header row
		if first {
			first = false
			if _, convErr := strconv.ParseFloat(rec[2], 64); convErr != nil {
				continue
			}
		}

		name, typeStr := rec[0], strings.ToLower(rec[1])

		a, err1 := strconv.ParseFloat(rec[2], 64)
		b, err2 := strconv.ParseFloat(rec[3], 64)
		if err1 != nil || err2 != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s due to invalid coords: %s, %s\n", name, rec[2], rec[3])
			continue
		}

		lon, lat := a, b
		if size > 0 {
			lon, lat = geo.ImageToLatLng(a, b, size)
		}

		f := geojson.NewFeature(orb.Point{lon, lat})
		f.Properties["name"] = name
		f.Properties["type"] = typeStr

		fc.Append(f)
		count++
	}

	return fc, count, nil
}

// marshalYAML round-trips through JSON so the collection serializes with its
// GeoJSON field names.
func marshalYAML(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, err
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	return yaml.Marshal(v)
}
