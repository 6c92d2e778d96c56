package fileutil

import (
	"encoding/json"
	"io"
	"os"
)

func PrintJSON(value any) error {
	return WriteJSON(os.Stdout, value)
}

// WriteJSON writes value as indented JSON.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
