// Package dataset generates the synthetic "pascal" table and renders it as CSV, HTML or Excel.
// Rows are a pure function of count and base time, so cached exports stay consistent with each other.
package dataset

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Format of a rendered dataset
type Format string

// supported formats
const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatHTML  Format = "html"
	FormatExcel Format = "excel"
)

// Formats lists all supported formats
var Formats = []Format{FormatJSON, FormatCSV, FormatHTML, FormatExcel}

// ParseFormat validates format name, empty is json
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatJSON, nil
	}
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// ContentType returns mime type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json; charset=utf-8"
	}
}

// Boolean values are spelled the way spreadsheet users of the dataset expect them
const (
	True  = "ИСТИНА"
	False = "ЛОЖЬ"
)

// Row is a single generated record
type Row struct {
	ID           int     `json:"id"`
	Timestamp    string  `json:"timestamp"`
	BooleanField string  `json:"boolean_field"`
	NumericField float64 `json:"numeric_field"`
	TextField    string  `json:"text_field"`
	DateField    string  `json:"date_field"`
	TimeField    string  `json:"time_field"`
	Category     string  `json:"category"`
	Status       string  `json:"status"`
}

// Header is the column order of all tabular renderings
var Header = []string{"id", "timestamp", "boolean_field", "numeric_field", "text_field", "date_field",
	"time_field", "category", "status"}

// Generate makes count rows, dates of row i go back i%30 days from base
func Generate(count int, base time.Time) []Row {
	rows := make([]Row, 0, max(count, 0))
	for i := 0; i < count; i++ {
		ts := base.AddDate(0, 0, -(i % 30))
		row := Row{
			ID:           i + 1,
			Timestamp:    ts.Format("2006-01-02T15:04:05"),
			BooleanField: False,
			NumericField: math.Round((float64(i)*1.5+5.5)*100) / 100,
			TextField:    fmt.Sprintf("Текстовая строка номер %d", i+1),
			DateField:    ts.Format("2006-01-02"),
			TimeField:    ts.Format("15:04:05"),
			Category:     "Б",
			Status:       "завершен",
		}
		if i%2 == 0 {
			row.BooleanField = True
		}
		if i%3 == 0 {
			row.Category = "А"
		}
		if i%4 == 0 {
			row.Status = "активен"
		}
		rows = append(rows, row)
	}
	return rows
}

// Values returns the row's cells in Header order
func (r Row) Values() []any {
	return []any{r.ID, r.Timestamp, r.BooleanField, r.NumericField, r.TextField, r.DateField, r.TimeField,
		r.Category, r.Status}
}
