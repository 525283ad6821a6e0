package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sheet1"

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// exportTable is a set of JSON objects flattened to a header row plus cells,
// columns in first-seen key order.
type exportTable struct {
	Header []string
	Rows   [][]json.RawMessage
}

// parseExportRows decodes a JSON array of flat objects, keeping key order.
func parseExportRows(data []byte) (*exportTable, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return nil, errors.New("data must be a JSON array of objects")
	}

	t := &exportTable{}
	col := map[string]int{}
	for dec.More() {
		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return nil, fmt.Errorf("row %d: expected an object", len(t.Rows)+1)
		}

		row := make([]json.RawMessage, len(t.Header))
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", len(t.Rows)+1, err)
			}
			key, _ := tok.(string)

			var v json.RawMessage
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("row %d, %q: %w", len(t.Rows)+1, key, err)
			}

			i, ok := col[key]
			if !ok {
				i = len(t.Header)
				col[key] = i
				t.Header = append(t.Header, key)
			}
			for len(row) <= i {
				row = append(row, nil)
			}
			row[i] = v
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("row %d: %w", len(t.Rows)+1, err)
		}
		t.Rows = append(t.Rows, row)
	}

	if len(t.Rows) == 0 {
		return nil, errors.New("data must contain at least one row")
	}
	return t, nil
}

// cellText renders a cell for CSV: strings unquoted, null and missing empty.
func cellText(v json.RawMessage) string {
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var s string
	if v[0] == '"' && json.Unmarshal(v, &s) == nil {
		return s
	}
	return string(v)
}

// cellValue renders a cell for XLSX, keeping numbers numeric.
func cellValue(v json.RawMessage) any {
	s := cellText(v)
	if len(v) > 0 && v[0] != '"' {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// exportPayload reads rows from the data query parameter on GET or from the
// body on POST.
func exportPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Method == http.MethodPost {
		defer r.Body.Close()
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return nil, errors.New("request body too large")
		}
		return b, nil
	}
	data := r.URL.Query().Get("data")
	if strings.TrimSpace(data) == "" {
		return nil, errors.New("data query parameter is required")
	}
	return []byte(data), nil
}

func exportFilename(r *http.Request, ext string) string {
	name := unsafeFilename.ReplaceAllString(strings.TrimSpace(r.URL.Query().Get("filename")), "_")
	name = strings.TrimSuffix(name, ext)
	if name == "" || name == "_" {
		name = "deadkm_export"
	}
	return name + ext
}

func ExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := exportPayload(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	table, err := parseExportRows(data)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(table.Header)
	record := make([]string, len(table.Header))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellText(row[i])
			}
		}
		_ = cw.Write(record)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		writeError(w, r, http.StatusInternalServerError, "csv export failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(r, ".csv")))
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("csv export write failed err=%v", err)
	}
}

func ExportXLSX(w http.ResponseWriter, r *http.Request) {
	data, err := exportPayload(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	table, err := parseExportRows(data)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(table.Header))
	for i, h := range table.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		writeError(w, r, http.StatusInternalServerError, "xlsx export failed")
		return
	}
	for n, row := range table.Rows {
		values := make([]any, len(table.Header))
		for i := range values {
			values[i] = ""
			if i < len(row) {
				values[i] = cellValue(row[i])
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err == nil {
			err = f.SetSheetRow(exportSheet, cell, &values)
		}
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "xlsx export failed")
			return
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		writeError(w, r, http.StatusInternalServerError, "xlsx export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(r, ".xlsx")))
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("xlsx export write failed err=%v", err)
	}
}
