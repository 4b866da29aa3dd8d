package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// Document is the json rendering of a generated dataset
type Document struct {
	Data        []Row    `json:"data"`
	Count       int      `json:"count"`
	GeneratedAt string   `json:"generated_at"`
	Formats     []Format `json:"formats"`
}

// Render returns rows in the given format
func Render(f Format, rows []Row, generatedAt time.Time) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.Marshal(Document{Data: rows, Count: len(rows), GeneratedAt: generatedAt.Format(time.RFC3339), Formats: Formats})
	case FormatCSV:
		return CSV(rows)
	case FormatHTML:
		return HTML(rows, generatedAt)
	case FormatExcel:
		return Excel(rows)
	}
	return nil, fmt.Errorf("unsupported format %q", f)
}

// CSV renders rows with a header line. The output starts with UTF-8 BOM so spreadsheets detect the encoding.
func CSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		rec := []string{strconv.Itoa(r.ID), r.Timestamp, r.BooleanField, strconv.FormatFloat(r.NumericField, 'f', 2, 64),
			r.TextField, r.DateField, r.TimeField, r.Category, r.Status}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

var htmlTmpl = template.Must(template.New("dataset").Parse(`<!DOCTYPE html>
<html lang="ru">
<head><meta charset="utf-8"><title>Pascal dataset</title></head>
<body>
<h1>Pascal dataset</h1>
<p>Rows: {{len .Rows}}, generated at {{.GeneratedAt}}</p>
<table border="1">
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.ID}}</td><td>{{.Timestamp}}</td><td>{{.BooleanField}}</td><td>{{printf "%.2f" .NumericField}}</td><td>{{.TextField}}</td><td>{{.DateField}}</td><td>{{.TimeField}}</td><td>{{.Category}}</td><td>{{.Status}}</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// HTML renders rows as a standalone html page with a table
func HTML(rows []Row, generatedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		Header      []string
		Rows        []Row
		GeneratedAt string
	}{Header: Header, Rows: rows, GeneratedAt: generatedAt.Format(time.RFC3339)}
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute html template: %w", err)
	}
	return buf.Bytes(), nil
}

// SheetName is the worksheet of the Excel rendering
const SheetName = "Данные"

// Excel renders rows as xlsx workbook with typed numeric column and sized columns
func Excel(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // in-memory file

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		vals := r.Values()
		if err := f.SetSheetRow(SheetName, cell, &vals); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r.ID, err)
		}
	}

	widths := map[string]float64{"A": 8, "B": 22, "C": 15, "D": 15, "E": 32, "F": 14, "G": 12, "H": 12, "I": 14}
	for col, w := range widths {
		if err := f.SetColWidth(SheetName, col, col, w); err != nil {
			return nil, fmt.Errorf("set width of %s: %w", col, err)
		}
	}
	numStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("create number style: %w", err)
	}
	if err := f.SetColStyle(SheetName, "D", numStyle); err != nil {
		return nil, fmt.Errorf("set number style: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
