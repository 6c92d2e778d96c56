package fileutil

import (
	"encoding/json"
	"io"
)

// NewJSONLEncoder writes one JSON value per line without HTML escaping.
func NewJSONLEncoder(w io.Writer) *json.Encoder {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder
}
