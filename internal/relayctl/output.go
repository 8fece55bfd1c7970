package relayctl

import (
	"encoding/json"
	"io"
	"text/tabwriter"
)

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printJSONLine writes data as one compact line, for streamed output.
func printJSONLine(w io.Writer, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func flushTable(tw *tabwriter.Writer) {
	_ = tw.Flush()
}

func optionalFloat(v *float64) interface{} {
	if v == nil {
		return "-"
	}
	return *v
}
