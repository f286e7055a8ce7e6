// Package importer bulk-loads a provider's car listings from CSV.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"rentwheels/internal/cars"
)

// CarStore is the subset of the car service the importer writes through.
type CarStore interface {
	Create(ctx context.Context, input cars.CreateCarInput) (cars.Car, error)
	ListByProvider(ctx context.Context, email string) ([]cars.Car, error)
}

// Provider is the owner every imported listing is published under.
type Provider struct {
	Name  string
	Email string
}

type Summary struct {
	TotalRows         int             `json:"totalRows"`
	Imported          int             `json:"imported"`
	SkippedDuplicates []SkippedRecord `json:"skippedDuplicates"`
	Failed            []FailedRecord  `json:"failed"`
	TruncatedRecords  bool            `json:"truncatedRecords,omitempty"`
}

type SkippedRecord struct {
	Row    int    `json:"row"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

type FailedRecord struct {
	Row   int    `json:"row"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

var ErrInvalidCSV = errors.New("invalid csv upload")

// MaxImportRows limits the number of data rows processed per upload.
const MaxImportRows = 500

// MaxFailedRecords caps the failed and skipped records kept in the summary.
const MaxFailedRecords = 100

var requiredColumns = []string{
	"name",
	"category",
	"priceperday",
	"image",
}

type CSVImporter struct {
	cars CarStore
}

func NewCSVImporter(store CarStore) *CSVImporter {
	return &CSVImporter{cars: store}
}

// Import reads listings from reader and publishes each valid, non-duplicate
// row as an Available car owned by provider. Row-level problems are reported
// in the summary; only a malformed file fails the whole import.
func (i *CSVImporter) Import(ctx context.Context, reader io.Reader, provider Provider) (Summary, error) {
	if i.cars == nil {
		return Summary{}, fmt.Errorf("%w: car store is not configured", ErrInvalidCSV)
	}

	existing, err := i.cars.ListByProvider(ctx, provider.Email)
	if err != nil {
		return Summary{}, err
	}
	tracker := newDuplicateTracker(existing)

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Summary{}, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
		}
		return Summary{}, fmt.Errorf("%w: failed to read header", ErrInvalidCSV)
	}

	columns, err := normalizeHeader(header)
	if err != nil {
		return Summary{}, err
	}

	type parsedRow struct {
		number int
		values map[string]string
	}

	var rows []parsedRow
	rowNumber := 1
	totalRows := 0

	for {
		record, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Summary{}, fmt.Errorf("%w: failed to read row %d", ErrInvalidCSV, rowNumber+1)
		}
		rowNumber++
		values := mapRecord(columns, record)
		if isRowEmpty(values) {
			continue
		}

		totalRows++
		if totalRows > MaxImportRows {
			return Summary{}, fmt.Errorf("%w: CSV exceeds maximum of %d rows", ErrInvalidCSV, MaxImportRows)
		}
		rows = append(rows, parsedRow{number: rowNumber, values: values})
	}

	summary := Summary{TotalRows: totalRows}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		input, rowErr := buildInput(row.values, provider)
		if rowErr != nil {
			summary.fail(row.number, row.values["name"], rowErr)
			continue
		}

		if tracker.Seen(input) {
			if len(summary.SkippedDuplicates) < MaxFailedRecords {
				summary.SkippedDuplicates = append(summary.SkippedDuplicates, SkippedRecord{
					Row:    row.number,
					Name:   input.Name,
					Reason: "duplicate listing",
				})
			} else {
				summary.TruncatedRecords = true
			}
			continue
		}

		if _, err := i.cars.Create(ctx, input); err != nil {
			summary.fail(row.number, input.Name, err)
			continue
		}

		tracker.Add(input.Name, input.Model, input.Location)
		summary.Imported++
	}

	return summary, nil
}

func (s *Summary) fail(row int, name string, err error) {
	if len(s.Failed) >= MaxFailedRecords {
		s.TruncatedRecords = true
		return
	}
	s.Failed = append(s.Failed, FailedRecord{Row: row, Name: strings.TrimSpace(name), Error: err.Error()})
}

func buildInput(values map[string]string, provider Provider) (cars.CreateCarInput, error) {
	name := values["name"]
	if name == "" {
		return cars.CreateCarInput{}, fmt.Errorf("name is required")
	}

	category, ok := parseCategory(values["category"])
	if !ok {
		return cars.CreateCarInput{}, fmt.Errorf("category %q is not supported", values["category"])
	}

	price, err := parsePrice(values["priceperday"])
	if err != nil {
		return cars.CreateCarInput{}, err
	}

	return cars.CreateCarInput{
		Name:          name,
		Model:         values["model"],
		Category:      category,
		PricePerDay:   price,
		Location:      values["location"],
		Image:         values["image"],
		Description:   values["description"],
		Features:      splitFeatures(values["features"]),
		ProviderName:  provider.Name,
		ProviderEmail: provider.Email,
	}, nil
}

// parseCategory matches case-insensitively so spreadsheets exported with
// "suv" or "SEDAN" still import.
func parseCategory(value string) (cars.Category, bool) {
	for _, category := range cars.Categories {
		if strings.EqualFold(string(category), value) {
			return category, true
		}
	}
	return "", false
}

func parsePrice(value string) (float64, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "$")
	if cleaned == "" {
		return 0, fmt.Errorf("pricePerDay is required")
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("pricePerDay must be a number")
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("pricePerDay must be positive")
	}
	return parsed, nil
}

// splitFeatures accepts "|" or ";" separated lists; commas are column separators.
func splitFeatures(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == '|' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeHeader(header []string) (map[int]string, error) {
	columns := make(map[int]string, len(header))
	seen := map[string]bool{}
	for idx, raw := range header {
		cleaned := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		if cleaned == "" {
			continue
		}
		columns[idx] = cleaned
		seen[cleaned] = true
	}

	missing := make([]string, 0)
	for _, column := range requiredColumns {
		if !seen[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrInvalidCSV, strings.Join(missing, ", "))
	}
	return columns, nil
}

func mapRecord(columns map[int]string, record []string) map[string]string {
	values := make(map[string]string, len(columns))
	for idx, column := range columns {
		if idx >= len(record) {
			values[column] = ""
			continue
		}
		values[column] = strings.TrimSpace(record[idx])
	}
	return values
}

func isRowEmpty(values map[string]string) bool {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

// duplicateTracker keys listings by name, model and location so the same
// vehicle is not published twice by one provider.
type duplicateTracker struct {
	known map[string]struct{}
}

func newDuplicateTracker(existing []cars.Car) *duplicateTracker {
	tracker := &duplicateTracker{known: map[string]struct{}{}}
	for _, car := range existing {
		tracker.Add(car.Name, car.Model, car.Location)
	}
	return tracker
}

func listingKey(name, model, location string) string {
	normalize := func(value string) string { return strings.ToLower(strings.TrimSpace(value)) }
	return normalize(name) + "\x00" + normalize(model) + "\x00" + normalize(location)
}

func (t *duplicateTracker) Seen(input cars.CreateCarInput) bool {
	_, ok := t.known[listingKey(input.Name, input.Model, input.Location)]
	return ok
}

func (t *duplicateTracker) Add(name, model, location string) {
	t.known[listingKey(name, model, location)] = struct{}{}
}
