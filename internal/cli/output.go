package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
)

var headingStyle = pterm.NewStyle(pterm.FgCyan, pterm.Bold)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func heading(w io.Writer, title string) {
	fmt.Fprintln(w, headingStyle.Sprint(title))
}

// table renders rows with the first row as header.
func table(w io.Writer, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	s, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(pterm.TableData(rows)).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, s)
	return err
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
