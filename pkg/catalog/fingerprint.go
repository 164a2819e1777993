package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Fingerprint is a ToolFingerprint (spec.md section 3): a SHA-256 digest
// over (name, description, canonical_json(input_schema)), used to decide
// whether a tool needs re-enhancement.
type Fingerprint string

// Fingerprint computes the ToolFingerprint for this definition. The
// input schema is re-marshalled through a generic map so that key order
// in the source document never perturbs the hash — the "canonical_json"
// step spec.md names.
func (t ToolDefinition) Fingerprint() (Fingerprint, error) {
	canonicalSchema, err := canonicalizeJSON(t.InputSchema)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(t.Name))
	h.Write([]byte{0})
	h.Write([]byte(t.Description))
	h.Write([]byte{0})
	h.Write(canonicalSchema)
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// canonicalizeJSON re-encodes raw JSON with map keys sorted, so
// semantically identical schemas with differently ordered keys hash the
// same.
func canonicalizeJSON(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return canonicalMarshal(v)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte("{")
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []any:
		buf := []byte("[")
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}
