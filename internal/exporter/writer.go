package exporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// utf8BOM lets spreadsheet applications detect the CSV encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Write encodes t to w in format f.
func Write(w io.Writer, f Format, t Table) error {
	if f == FormatXLSX {
		return WriteXLSX(w, t)
	}
	return WriteCSV(w, t)
}

// WriteCSV writes a UTF-8 BOM followed by the header and rows.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write csv bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, t Table) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err = f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	if err = setRow(f, sheet, 1, t.Header); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err = setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err = f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("cell name for row %d: %w", rowNum, err)
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err = f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("set row %d: %w", rowNum, err)
	}
	return nil
}
