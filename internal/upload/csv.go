// Package upload seeds a PI System with sample tags, values and an AF
// database so the verification checks have data to work with.
package upload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRow is returned for a CSV row with too few columns.
var ErrMalformedRow = errors.New("malformed CSV row")

// TagDefinition is one line of the tag definition file:
// name,pointType,pointClass.
type TagDefinition struct {
	Name       string
	PointType  string
	PointClass string
}

// DataRow is one line of the PI data file: tag,value,<ignored>,timestamp.
type DataRow struct {
	Tag       string
	Value     interface{}
	Timestamp time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
}

// ReadTagDefinitions parses a tag definition CSV. A header row starting
// with "name" is skipped.
func ReadTagDefinitions(r io.Reader) ([]TagDefinition, error) {
	records, err := readAll(r)
	if err != nil {
		return nil, err
	}

	var defs []TagDefinition
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "name") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("%w: tag definition line %d has %d columns, want 3", ErrMalformedRow, i+1, len(rec))
		}
		def := TagDefinition{Name: rec[0], PointType: rec[1], PointClass: rec[2]}
		if def.Name == "" {
			return nil, fmt.Errorf("%w: tag definition line %d has no name", ErrMalformedRow, i+1)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ReadData parses a PI data CSV. Numeric values are sent as numbers and
// everything else as digital state or string values.
func ReadData(r io.Reader) ([]DataRow, error) {
	records, err := readAll(r)
	if err != nil {
		return nil, err
	}

	var rows []DataRow
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "tag") {
			continue
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("%w: data line %d has %d columns, want 4", ErrMalformedRow, i+1, len(rec))
		}
		ts, err := parseTimestamp(rec[3])
		if err != nil {
			return nil, fmt.Errorf("data line %d: %w", i+1, err)
		}
		rows = append(rows, DataRow{Tag: rec[0], Value: parseValue(rec[1]), Timestamp: ts})
	}
	return rows, nil
}

func readAll(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		for j := range rec {
			rec[j] = strings.TrimSpace(rec[j])
		}
		records = append(records, rec)
	}
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parseValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
