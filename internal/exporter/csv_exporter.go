package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"rentwheels/internal/bookings"
)

// SchemaVersion identifies the CSV export format version.
const SchemaVersion = "1"

var csvColumns = []string{
	"schemaVersion",
	"bookingId",
	"carId",
	"carName",
	"category",
	"rentPrice",
	"location",
	"providerEmail",
	"email",
	"startingDate",
	"endDate",
	"status",
	"comment",
	"createdAt",
}

// CSVExporter writes bookings as CSV for offline reporting.
type CSVExporter struct{}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// WriteHeader writes the column row. Export calls it; streaming callers that
// write pages with WriteRows call it once first.
func (e *CSVExporter) WriteHeader(w *csv.Writer) error {
	if err := w.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	return nil
}

// WriteRows appends one row per booking.
func (e *CSVExporter) WriteRows(w *csv.Writer, list []bookings.Booking) error {
	for _, booking := range list {
		if err := w.Write(e.bookingToRow(booking)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return nil
}

// Export writes a complete CSV document for list.
func (e *CSVExporter) Export(w io.Writer, list []bookings.Booking) error {
	writer := csv.NewWriter(w)
	if err := e.WriteHeader(writer); err != nil {
		return err
	}
	if err := e.WriteRows(writer, list); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func (e *CSVExporter) bookingToRow(b bookings.Booking) []string {
	row := make([]string, len(csvColumns))

	row[0] = SchemaVersion
	row[1] = b.ID.String()
	row[2] = b.CarID.String()
	row[3] = b.CarName
	row[4] = string(b.Category)
	row[5] = strconv.FormatFloat(b.RentPrice, 'f', 2, 64)
	row[6] = b.Location
	row[7] = b.ProviderEmail
	row[8] = b.Email
	row[9] = formatOptionalDate(b.StartDate)
	row[10] = formatOptionalDate(b.EndDate)
	row[11] = b.Status
	row[12] = b.Comment
	row[13] = formatTime(b.CreatedAt)

	return row
}

func formatOptionalDate(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.Format(time.DateOnly)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(time.RFC3339)
}
