package dto

import (
	"bytes"
	"encoding/json"
)

// Strict unmarshals a request body rejecting unknown fields, so callers
// cannot smuggle arbitrary keys through to the external system.
func Strict(body []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
