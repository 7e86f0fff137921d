package analysis

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteXLSX writes the detail export as an XLSX workbook carrying the same
// rows as the CSV.
func WriteXLSX(path string, rows [][]string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("documentos")
	if err != nil {
		return eris.Wrap(err, "analysis: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, col := range DetailHeader {
		header.AddCell().SetString(col)
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, val := range row {
			r.AddCell().SetString(val)
		}
	}
	return eris.Wrapf(file.Save(path), "analysis: write xlsx %s", path)
}
