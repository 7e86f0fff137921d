package analysis

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"
)

// WriteCSV writes the detail export. Semicolon-delimited and UTF-8: the
// fiscal spreadsheets that consume it expect pt-BR list separators.
func WriteCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "analysis: create csv %s", path)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(DetailHeader); err != nil {
		f.Close()
		return eris.Wrap(err, "analysis: write csv header")
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return eris.Wrap(err, "analysis: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return eris.Wrap(err, "analysis: flush csv")
	}
	return eris.Wrapf(f.Close(), "analysis: close csv %s", path)
}
