package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/fields"
	"github.com/liamcoop/recalc/recalc"
)

const (
	growthSheet = "Capital Growth"
	passSheet   = "Last Recalculation"
	otherGroup  = "other"
)

// Workbook renders a session as a spreadsheet: a sheet per field group,
// the capital growth tables when present and the last pass.
func Workbook(def *calculator.Definition, store *fields.Store, last *recalc.Result) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	first := true
	for _, g := range groupFields(store.Fields()) {
		sheet := sheetName(g.name)
		if first {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}

		writeHeader(f, sheet, headerStyle, "Field", "Label", "Value")
		row := 2
		for _, fld := range g.fields {
			if fld.Kind == fields.KindTable {
				continue
			}
			f.SetCellValue(sheet, fmt.Sprintf("A%d", row), fld.Name)
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), fld.Label)
			if fld.Set {
				f.SetCellValue(sheet, fmt.Sprintf("C%d", row), fld.Value)
			}
			row++
		}
		f.SetColWidth(sheet, "A", "B", 32)
		f.SetColWidth(sheet, "C", "C", 18)
	}
	if first {
		f.SetSheetName("Sheet1", sheetName(def.Name))
	}

	if err := writeGrowth(f, store, headerStyle); err != nil {
		return nil, err
	}
	if last != nil {
		if err := writeLastPass(f, last, headerStyle); err != nil {
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

// Write renders the workbook to w
func Write(w io.Writer, def *calculator.Definition, store *fields.Store, last *recalc.Result) error {
	f, err := Workbook(def, store, last)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

type fieldGroup struct {
	name   string
	fields []fields.Field
}

// groupFields keeps groups in the order their first field is declared
func groupFields(all []fields.Field) []fieldGroup {
	var groups []fieldGroup
	index := make(map[string]int)
	for _, fld := range all {
		name := fld.Group
		if name == "" {
			name = otherGroup
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, fieldGroup{name: name})
		}
		groups[i].fields = append(groups[i].fields, fld)
	}
	return groups
}

func writeGrowth(f *excelize.File, store *fields.Store, style int) error {
	var tables []fields.Field
	for _, fld := range store.Fields() {
		if !fld.Set {
			continue
		}
		if _, ok := fld.Value.([]calculator.GrowthRow); ok {
			tables = append(tables, fld)
		}
	}
	if len(tables) == 0 {
		return nil
	}

	if _, err := f.NewSheet(growthSheet); err != nil {
		return err
	}

	row := 1
	for _, t := range tables {
		f.SetCellValue(growthSheet, fmt.Sprintf("A%d", row), t.Label)
		row++
		writeHeaderAt(f, growthSheet, style, row, "Year", "Value", "Growth %", "Increase")
		row++
		for _, g := range t.Value.([]calculator.GrowthRow) {
			f.SetCellValue(growthSheet, fmt.Sprintf("A%d", row), g.Year)
			f.SetCellValue(growthSheet, fmt.Sprintf("B%d", row), g.Value)
			if g.Increase != nil {
				f.SetCellValue(growthSheet, fmt.Sprintf("C%d", row), g.GrowthRate)
				f.SetCellValue(growthSheet, fmt.Sprintf("D%d", row), *g.Increase)
			}
			row++
		}
		row++
	}
	f.SetColWidth(growthSheet, "A", "D", 16)
	return nil
}

func writeLastPass(f *excelize.File, res *recalc.Result, style int) error {
	if _, err := f.NewSheet(passSheet); err != nil {
		return err
	}

	f.SetCellValue(passSheet, "A1", "Pass")
	f.SetCellValue(passSheet, "B1", res.PassID)
	if res.Trigger != "" {
		f.SetCellValue(passSheet, "A2", "Trigger")
		f.SetCellValue(passSheet, "B2", res.Trigger)
	} else {
		f.SetCellValue(passSheet, "A2", "Group")
		f.SetCellValue(passSheet, "B2", res.Group)
	}
	f.SetCellValue(passSheet, "A3", "Started")
	f.SetCellValue(passSheet, "B3", res.StartedAt.Format("2006-01-02 15:04:05"))

	writeHeaderAt(f, passSheet, style, 5, "Computation", "Status", "Detail")
	row := 6
	for _, o := range res.Outcomes {
		f.SetCellValue(passSheet, fmt.Sprintf("A%d", row), o.Computation)
		f.SetCellValue(passSheet, fmt.Sprintf("B%d", row), string(o.Status))
		switch o.Status {
		case recalc.StatusUpdated:
			f.SetCellValue(passSheet, fmt.Sprintf("C%d", row), strings.Join(o.Written, ", "))
		case recalc.StatusSkipped:
			f.SetCellValue(passSheet, fmt.Sprintf("C%d", row), "missing "+strings.Join(o.Missing, ", "))
		case recalc.StatusFailed:
			f.SetCellValue(passSheet, fmt.Sprintf("C%d", row), o.Reason)
		}
		row++
	}
	f.SetColWidth(passSheet, "A", "B", 32)
	f.SetColWidth(passSheet, "C", "C", 60)
	return nil
}

func writeHeader(f *excelize.File, sheet string, style int, headers ...string) {
	writeHeaderAt(f, sheet, style, 1, headers...)
}

func writeHeaderAt(f *excelize.File, sheet string, style, row int, headers ...string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, h)
	}
	f.SetRowStyle(sheet, row, row, style)
}

// sheetName makes a group name usable as a sheet title
func sheetName(name string) string {
	switch name {
	case "uk":
		return "UK Investor"
	case "int":
		return "International Investor"
	}
	name = fields.Label(name)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
