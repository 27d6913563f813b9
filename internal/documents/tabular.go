package documents

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/evidence-cli/internal/model"
)

// extractCSV emits one chunk per data row. The first row is the header;
// rows are numbered as a spreadsheet would show them, so the first data row
// is row 2.
func extractCSV(path, sheet string) ([]model.DocumentPage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "documents: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "documents: read csv %s", path)
		}
		rows = append(rows, rec)
	}
	return rowChunks(sheet, rows), nil
}

// extractXLSX emits one chunk per data row of every sheet.
func extractXLSX(path string) ([]model.DocumentPage, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "documents: open xlsx %s", path)
	}
	var pages []model.DocumentPage
	for _, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for i, c := range row.Cells {
				cells[i] = c.String()
			}
			rows = append(rows, cells)
		}
		pages = append(pages, rowChunks(sheet.Name, rows)...)
	}
	return pages, nil
}

func rowChunks(sheet string, rows [][]string) []model.DocumentPage {
	if len(rows) < 2 {
		return nil
	}
	header := rows[0]
	var pages []model.DocumentPage
	for i, row := range rows[1:] {
		content := rowText(header, row)
		if content == "" {
			continue
		}
		n := i + 2
		pages = append(pages, model.DocumentPage{Sheet: sheet, Row: &n, Content: content})
	}
	return pages
}

// rowText renders "header: value" pairs joined by " | ", skipping empty
// cells. Cells past the header are labeled by column letter.
func rowText(header, row []string) string {
	parts := make([]string, 0, len(row))
	for i, v := range row {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		h := ""
		if i < len(header) {
			h = strings.TrimSpace(header[i])
		}
		if h == "" {
			h = columnName(i)
		}
		parts = append(parts, h+": "+v)
	}
	return strings.Join(parts, " | ")
}

// columnName converts a 0-based index to a spreadsheet column (A, B, ..., AA).
func columnName(i int) string {
	name := ""
	for i++; i > 0; i = (i - 1) / 26 {
		name = string(rune('A'+(i-1)%26)) + name
	}
	return name
}
