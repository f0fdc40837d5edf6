package locations

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smart-navigator/server/internal/domain/ids"
	"github.com/smart-navigator/server/internal/sanitize"
)

// RowError reports a single invalid CSV row. Row numbers are 1-based and
// include the header row.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d, %s: %s", e.Row, e.Field, e.Message)
}

// ImportError aggregates every row failure from a rejected batch.
type ImportError struct {
	Rows []RowError
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("csv import rejected: %d invalid rows", len(e.Rows))
}

var requiredColumns = []string{"name", "type", "latitude", "longitude"}

// ParseCSV reads a location CSV and returns the parsed rows. The batch is
// all-or-nothing: any invalid row rejects the whole file with an
// ImportError listing every failure.
func ParseCSV(r io.Reader) ([]*Location, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ImportError{Rows: []RowError{{Row: 1, Field: "file", Message: "file is empty"}}}
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, &ImportError{Rows: []RowError{{Row: 1, Field: required, Message: "missing required column"}}}
		}
	}

	var (
		rows    []*Location
		rowErrs []RowError
		rowNum  = 1
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Field: "row", Message: "malformed csv row"})
			continue
		}

		loc, errs := parseRow(columns, record, rowNum)
		if errs != nil {
			rowErrs = append(rowErrs, errs...)
			continue
		}
		rows = append(rows, loc)
	}

	if len(rows) == 0 && rowErrs == nil {
		rowErrs = append(rowErrs, RowError{Row: 1, Field: "file", Message: "file contains no data rows"})
	}
	if rowErrs != nil {
		return nil, &ImportError{Rows: rowErrs}
	}
	return rows, nil
}

func parseRow(columns map[string]int, record []string, rowNum int) (*Location, []RowError) {
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var errs []RowError

	name := sanitize.Text(cell("name"))
	if len(name) < 2 || len(name) > 100 {
		errs = append(errs, RowError{Row: rowNum, Field: "name", Message: "must be 2-100 characters"})
	}

	locType, ok := ParseType(cell("type"))
	if !ok {
		errs = append(errs, RowError{Row: rowNum, Field: "type", Message: "unknown location type"})
	}

	lat, err := strconv.ParseFloat(cell("latitude"), 64)
	if err != nil || lat < -90 || lat > 90 {
		errs = append(errs, RowError{Row: rowNum, Field: "latitude", Message: "must be between -90 and 90"})
	}
	lng, err := strconv.ParseFloat(cell("longitude"), 64)
	if err != nil || lng < -180 || lng > 180 {
		errs = append(errs, RowError{Row: rowNum, Field: "longitude", Message: "must be between -180 and 180"})
	}

	loc := &Location{
		ULID:        ids.NewULID(),
		Name:        name,
		Description: sanitize.HTML(cell("description")),
		Type:        locType,
		Latitude:    lat,
		Longitude:   lng,
		Facilities:  []string{},
		Tags:        normalizeList(sanitize.TextSlice(strings.Split(cell("tags"), ","))),
		IsActive:    true,
	}

	if raw := cell("floor"); raw != "" {
		floor, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, RowError{Row: rowNum, Field: "floor", Message: "must be an integer"})
		} else {
			loc.Floor = &floor
		}
	}
	if raw := cell("capacity"); raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil || capacity < 1 {
			errs = append(errs, RowError{Row: rowNum, Field: "capacity", Message: "must be a positive integer"})
		} else {
			loc.Capacity = &capacity
		}
	}
	if raw := cell("facilities"); raw != "" {
		for _, facility := range normalizeList(strings.Split(raw, ",")) {
			if !IsFacility(facility) {
				errs = append(errs, RowError{Row: rowNum, Field: "facilities", Message: "unknown facility: " + facility})
				continue
			}
			loc.Facilities = append(loc.Facilities, facility)
		}
	}

	if errs != nil {
		return nil, errs
	}
	return loc, nil
}

// Import parses the CSV and stores all rows in a single transaction.
// Returns the number of imported locations.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return 0, fmt.Errorf("import locations: %w", err)
	}
	return len(rows), nil
}
