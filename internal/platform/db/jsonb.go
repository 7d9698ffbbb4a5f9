package db

import "encoding/json"

// JSONB converts a raw JSON document into a query argument for a JSONB
// column. Empty or null documents become SQL NULL.
func JSONB(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
