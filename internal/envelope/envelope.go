// Package envelope normalizes the two JSON-RPC shapes the proxy accepts —
// the new "!version"/content.{method,params} envelope and the legacy flat
// method/params shape — behind one accessor so the pipeline never has to
// branch on which one it's holding.
package envelope

import "encoding/json"

// emailFields is the ordered probe list used to pull a user identity out of
// an arbitrary params object. First match wins.
var emailFields = []string{"email", "userEmail", "user_email", "username", "userId", "user_id", "user"}

// Envelope wraps a decoded JSON-RPC request body and exposes the method,
// params, and a setter that writes back to whichever shape the body used.
type Envelope struct {
	raw      map[string]interface{}
	isLegacy bool
}

// Parse decodes body into an Envelope. body must already be valid JSON; the
// caller is expected to have handled the not-JSON case upstream (the
// pipeline passes such bodies straight through unmodified).
func Parse(body []byte) (*Envelope, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	_, hasContent := raw["content"].(map[string]interface{})
	return &Envelope{raw: raw, isLegacy: !hasContent}, nil
}

// Method returns the JSON-RPC method name regardless of envelope shape.
func (e *Envelope) Method() string {
	if e.isLegacy {
		m, _ := e.raw["method"].(string)
		return m
	}
	content, _ := e.raw["content"].(map[string]interface{})
	m, _ := content["method"].(string)
	return m
}

// Params returns the raw params value (object, string, or nil).
func (e *Envelope) Params() interface{} {
	if e.isLegacy {
		return e.raw["params"]
	}
	content, _ := e.raw["content"].(map[string]interface{})
	return content["params"]
}

// SetParams rewrites params in place, in whichever shape the envelope uses.
func (e *Envelope) SetParams(v interface{}) {
	if e.isLegacy {
		e.raw["params"] = v
		return
	}
	content, ok := e.raw["content"].(map[string]interface{})
	if !ok {
		content = map[string]interface{}{}
		e.raw["content"] = content
	}
	content["params"] = v
}

// Raw returns the underlying decoded map, for callers that need to
// marshal the whole envelope back out or read other top-level fields.
func (e *Envelope) Raw() map[string]interface{} {
	return e.raw
}

// MarshalJSON re-serializes the envelope in its original shape.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.raw)
}

// ExtractEmail walks params looking for an identity field. If params is a
// dict, fields are probed directly; if params arrived as a JSON-encoded
// string, it is parsed one level deep and the same fields are probed against
// the result. Returns "" if nothing matched.
func ExtractEmail(params interface{}) string {
	switch p := params.(type) {
	case map[string]interface{}:
		return probeFields(p)
	case string:
		var nested map[string]interface{}
		if err := json.Unmarshal([]byte(p), &nested); err != nil {
			return ""
		}
		return probeFields(nested)
	default:
		return ""
	}
}

func probeFields(m map[string]interface{}) string {
	for _, field := range emailFields {
		if v, ok := m[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
