package store

import (
	"encoding/json"
	"fmt"

	"github.com/ucarion/jcs"
)

// canonicalizeJSON rewrites raw (a JSON object/array/value as text) into its
// RFC 8785 canonical form before it is stored, so two admins who submit the
// same rule with different key order or whitespace land on identical bytes
// in custom_response / template_json. Empty input passes through untouched —
// an unset custom_response is not a canonicalization error.
func canonicalizeJSON(raw string) (string, error) {
	if raw == "" {
		return raw, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", fmt.Errorf("store: canonicalize: %w", err)
	}
	out, err := jcs.Format(v)
	if err != nil {
		return "", fmt.Errorf("store: canonicalize: %w", err)
	}
	return string(out), nil
}
