package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter writes data as JSON, indented unless Compact is set.
type JSONFormatter struct {
	// Compact disables indentation.
	Compact bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !f.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}
