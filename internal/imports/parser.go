package imports

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column identifies a canonical spreadsheet column.
type Column string

const (
	ColDate     Column = "date"
	ColCustomer Column = "customer"
	ColProduct  Column = "product"
	ColStore    Column = "store"
	ColRegion   Column = "region"
	ColCategory Column = "category"
	ColQuantity Column = "quantity"
	ColPrice    Column = "price"
	ColTotal    Column = "total"
	ColName     Column = "name"
)

// headerSynonyms maps accepted header spellings to canonical columns. The set
// is fixed at build time; there is no runtime schema introspection.
var headerSynonyms = map[string]Column{
	"date":        ColDate,
	"sale_date":   ColDate,
	"дата":        ColDate,
	"customer":    ColCustomer,
	"client":      ColCustomer,
	"клиент":      ColCustomer,
	"покупатель":  ColCustomer,
	"product":     ColProduct,
	"item":        ColProduct,
	"товар":       ColProduct,
	"продукт":     ColProduct,
	"store":       ColStore,
	"shop":        ColStore,
	"магазин":     ColStore,
	"точка":       ColStore,
	"region":      ColRegion,
	"регион":      ColRegion,
	"category":    ColCategory,
	"категория":   ColCategory,
	"quantity":    ColQuantity,
	"qty":         ColQuantity,
	"количество":  ColQuantity,
	"кол-во":      ColQuantity,
	"price":       ColPrice,
	"unit_price":  ColPrice,
	"цена":        ColPrice,
	"total":       ColTotal,
	"amount":      ColTotal,
	"sum":         ColTotal,
	"сумма":       ColTotal,
	"name":        ColName,
	"имя":         ColName,
	"наименование": ColName,
}

// Table is the parsed content of one uploaded file.
type Table struct {
	Columns map[Column]int
	Rows    [][]string
}

// ErrEmptyFile is returned when a file carries no content at all, not even a
// header. A recognizable header with zero data rows is a valid empty table.
var ErrEmptyFile = errors.New("imports: file is empty")

// ParseFile reads an uploaded spreadsheet into a Table. The format is chosen
// by file extension: .xlsx via excelize, everything else treated as CSV.
func ParseFile(r io.Reader, filename string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return parseXLSX(r)
	}
	return parseCSV(r)
}

func parseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("imports: open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("imports: read sheet %q: %w", sheets[0], err)
	}
	return buildTable(rows)
}

func parseCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("imports: read csv: %w", err)
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("imports: parse csv: %w", err)
	}
	return buildTable(records)
}

// sniffDelimiter picks ';' when the first line carries more semicolons than
// commas, which is how most locale-specific exports arrive.
func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func buildTable(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	columns := make(map[Column]int)
	for i, cell := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(cell))
		if col, ok := headerSynonyms[key]; ok {
			if _, seen := columns[col]; !seen {
				columns[col] = i
			}
		}
	}
	if len(columns) == 0 {
		return nil, errors.New("imports: no recognizable header columns")
	}
	return &Table{Columns: columns, Rows: rows[1:]}, nil
}

// Cell returns the trimmed value of a canonical column for one raw row, or
// empty string when the column is absent or the row is short.
func (t *Table) Cell(row []string, col Column) string {
	idx, ok := t.Columns[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
