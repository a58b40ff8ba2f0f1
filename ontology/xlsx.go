package ontology

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names read by XLSXLoader, matched case-insensitively.
const (
	SheetKPIs     = "KPIs"
	SheetMachines = "Machines"
)

// XLSXLoader reads a vocabulary workbook. The first row of each sheet is a
// header; columns are found by name.
//
//	KPIs:     id | description | atomic | unit | formula
//	Machines: id | description | produces (comma or semicolon separated)
type XLSXLoader struct{}

func (l *XLSXLoader) SupportedFormats() []string { return []string{"xlsx"} }

func (l *XLSXLoader) Load(ctx context.Context, path string) (*Graph, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()
	return ReadWorkbook(f)
}

// ReadWorkbook reads a Graph from an open workbook.
func ReadWorkbook(f *excelize.File) (*Graph, error) {
	sheets := make(map[string]string)
	for _, name := range f.GetSheetList() {
		sheets[strings.ToLower(strings.TrimSpace(name))] = name
	}

	g := &Graph{}

	if name, ok := sheets[strings.ToLower(SheetKPIs)]; ok {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", name, err)
		}
		t, err := newTable(name, rows)
		if err != nil {
			return nil, err
		}
		for i, row := range t.rows {
			k := KPI{
				ID:          t.get(row, "id"),
				Description: t.get(row, "description"),
				Unit:        t.get(row, "unit", "unit_measure"),
				Formula:     t.get(row, "formula"),
			}
			if k.ID == "" {
				continue
			}
			if v := t.get(row, "atomic"); v != "" {
				b, err := strconv.ParseBool(strings.ToLower(v))
				if err != nil {
					return nil, fmt.Errorf("sheet %s row %d: atomic %q: %w", name, i+2, v, err)
				}
				k.Atomic = &b
			}
			g.KPIs = append(g.KPIs, k)
		}
	}

	if name, ok := sheets[strings.ToLower(SheetMachines)]; ok {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", name, err)
		}
		t, err := newTable(name, rows)
		if err != nil {
			return nil, err
		}
		for _, row := range t.rows {
			m := Machine{
				ID:          t.get(row, "id"),
				Description: t.get(row, "description"),
				Produces:    splitList(t.get(row, "produces", "kpis")),
			}
			if m.ID == "" {
				continue
			}
			g.Machines = append(g.Machines, m)
		}
	}

	if len(g.KPIs) == 0 && len(g.Machines) == 0 {
		return nil, fmt.Errorf("%w: no %s or %s sheet with data", ErrEmptyGraph, SheetKPIs, SheetMachines)
	}
	return g, nil
}

type table struct {
	cols map[string]int
	rows [][]string
}

func newTable(sheet string, rows [][]string) (*table, error) {
	if len(rows) == 0 {
		return &table{}, nil
	}
	t := &table{cols: make(map[string]int), rows: rows[1:]}
	for i, h := range rows[0] {
		t.cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := t.cols["id"]; !ok {
		return nil, fmt.Errorf("sheet %s: missing id column", sheet)
	}
	return t, nil
}

// get returns the trimmed cell under the first header present. GetRows
// trims trailing empty cells, so short rows are expected.
func (t *table) get(row []string, headers ...string) string {
	for _, h := range headers {
		if i, ok := t.cols[h]; ok {
			if i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
