package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptySheet         = errors.New("spreadsheet has no data rows")
	ErrUnsupportedFormat  = errors.New("unsupported spreadsheet format")
	utf8BOM               = []byte{0xEF, 0xBB, 0xBF}
	supportedExtensionMsg = ".xlsx, .xls, .csv"
)

// Первый лист файла. Header: первая непустая строка
type Sheet struct {
	Header []string
	Rows   [][]string
}

func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xls", ".csv", ".txt":
		return true
	}
	return false
}

func Parse(filename string, data []byte) (Sheet, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		rows, err = parseExcel(data)
	case ".xls":
		rows, err = parseXLS(data)
	case ".csv", ".txt":
		rows, err = parseCSV(data)
	default:
		return Sheet{}, fmt.Errorf("%w: %q, expected %s", ErrUnsupportedFormat, filepath.Ext(filename), supportedExtensionMsg)
	}
	if err != nil {
		return Sheet{}, fmt.Errorf("parse %s: %w", filename, err)
	}
	return newSheet(rows)
}

func newSheet(rows [][]string) (Sheet, error) {
	var sheet Sheet
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		if sheet.Header == nil {
			sheet.Header = make([]string, len(row))
			for i, h := range row {
				sheet.Header[i] = strings.TrimSpace(h)
			}
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	if len(sheet.Rows) == 0 {
		return Sheet{}, ErrEmptySheet
	}
	return sheet, nil
}

func (s Sheet) Records() []map[string]any {
	records := make([]map[string]any, 0, len(s.Rows))
	for _, row := range s.Rows {
		record := make(map[string]any, len(s.Header))
		for i, h := range s.Header {
			if h == "" {
				continue
			}
			value := ""
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			record[h] = value
		}
		records = append(records, record)
	}
	return records
}

func parseExcel(data []byte) ([][]string, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer xl.Close()

	// сырые значения: даты приходят серийными номерами Excel
	return xl.GetRows(xl.GetSheetName(0), excelize.Options{RawCellValue: true})
}

func parseXLS(data []byte) ([][]string, error) {
	tmpFile, err := os.CreateTemp("", "upload-*.xls")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	if _, err = tmpFile.Write(data); err != nil {
		return nil, err
	}
	tmpFile.Close()

	book, err := xls.OpenFile(tmpFile.Name())
	if err != nil {
		return nil, err
	}
	sheet, err := book.GetSheet(0)
	if err != nil || sheet == nil {
		return nil, ErrEmptySheet
	}

	rows := [][]string{}
	for _, xlsRow := range sheet.GetRows() {
		row := []string{}
		for _, col := range xlsRow.GetCols() {
			row = append(row, col.GetString())
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// выгрузки с бразильской локалью разделяют поля ';'
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
