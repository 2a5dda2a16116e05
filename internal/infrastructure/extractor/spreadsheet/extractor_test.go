package spreadsheet

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractWorkbook(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "Benefícios"); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	_ = f.SetCellValue("Benefícios", "A1", "Item")
	_ = f.SetCellValue("Benefícios", "B1", "Valor")
	_ = f.SetCellValue("Benefícios", "A2", "Vale refeição")
	_ = f.SetCellValue("Benefícios", "B2", "R$ 40")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	got, err := ExtractWorkbook(&buf)
	if err != nil {
		t.Fatalf("ExtractWorkbook() error = %v", err)
	}
	want := "BENEFÍCIOS\n\nItem | Valor\nVale refeição | R$ 40"
	if got != want {
		t.Fatalf("unexpected text:\n%q\nwant\n%q", got, want)
	}
}
