package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/records"
)

func TestWorkbook(t *testing.T) {
	def, err := calculator.Default()
	if err != nil {
		t.Fatal(err)
	}
	calc, err := calculator.Build(def, calculator.Deps{Lookup: records.NewMemoryStore()})
	if err != nil {
		t.Fatal(err)
	}
	store, err := calc.NewStore()
	if err != nil {
		t.Fatal(err)
	}
	err = store.SetAll(map[string]any{
		"purchase_price":             300000,
		"renovation":                 20000,
		"architectplanning":          1000,
		"building_control":           1000,
		"furniture":                  5000,
		"survey":                     500,
		"legals":                     1500,
		"insurance":                  500,
		"sourcing":                   3000,
		"sdlt":                       "Resi",
		"rooms":                      5,
		"rentm_rm_rate_reverse_calc": 3000,
		"asking_price":               400000,
	})
	if err != nil {
		t.Fatal(err)
	}

	session := calc.Engine.NewSession("export", store)
	res, err := session.RunGroup(context.Background(), "uk")
	if err != nil {
		t.Fatalf("RunGroup() failed: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, def, store, res); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() failed: %v", err)
	}
	defer f.Close()

	want := []string{"Details", "UK Investor", "International Investor", growthSheet, passSheet}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sheets = %v, want %v", got, want)
		}
	}

	cells := []struct {
		sheet, cell, want string
	}{
		{"UK Investor", "A1", "Field"},
		{"UK Investor", "A2", "purchase_price"},
		{"UK Investor", "B2", "Purchase Price"},
		{"UK Investor", "C2", "300000"},
		{"UK Investor", "C11", "Resi"},
		{"UK Investor", "C12", "20000"},
		{growthSheet, "A1", "Capital Growth Table"},
		{growthSheet, "A3", "0"},
		{growthSheet, "B3", "400000"},
		{growthSheet, "D3", "14000"},
		{passSheet, "A2", "Group"},
		{passSheet, "B2", "uk"},
		{passSheet, "A6", "calculate_sdlt"},
		{passSheet, "B6", "updated"},
		{passSheet, "C6", "sdlt_amount"},
	}
	for _, c := range cells {
		v, err := f.GetCellValue(c.sheet, c.cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s!%s) failed: %v", c.sheet, c.cell, err)
		}
		if v != c.want {
			t.Errorf("%s!%s = %q, want %q", c.sheet, c.cell, v, c.want)
		}
	}
}

func TestWorkbookWithoutPass(t *testing.T) {
	def, err := calculator.Default()
	if err != nil {
		t.Fatal(err)
	}
	calc, err := calculator.Build(def, calculator.Deps{Lookup: records.NewMemoryStore()})
	if err != nil {
		t.Fatal(err)
	}
	store, _ := calc.NewStore()

	f, err := Workbook(def, store, nil)
	if err != nil {
		t.Fatalf("Workbook() failed: %v", err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		if name == growthSheet || name == passSheet {
			t.Errorf("unexpected sheet %s", name)
		}
	}
}

func TestSheetName(t *testing.T) {
	tests := map[string]string{
		"details": "Details",
		"uk":      "UK Investor",
		"int":     "International Investor",
		"a_very_long_group_name_for_a_sheet_title": "A Very Long Group Name For A Sh",
	}
	for in, want := range tests {
		if got := sheetName(in); got != want {
			t.Errorf("sheetName(%q) = %q, want %q", in, got, want)
		}
	}
}
