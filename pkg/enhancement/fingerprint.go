package enhancement

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
)

// Fingerprint is a ToolFingerprint (spec.md section 3): a SHA-256 digest
// over a tool's name, description, and canonicalized input schema.
// Regeneration is required iff the current fingerprint differs from the
// one stored alongside a cached enhancement.
type Fingerprint string

// Compute hashes tool's name, description, and canonical JSON input
// schema. Re-marshaling InputSchema through json.Unmarshal/Marshal
// canonicalizes key order so two structurally equal schemas with
// different source formatting hash identically.
func Compute(tool catalog.ToolDefinition) Fingerprint {
	h := sha256.New()
	h.Write([]byte(tool.Name))
	h.Write([]byte{0})
	h.Write([]byte(tool.Description))
	h.Write([]byte{0})
	h.Write(canonicalSchema(tool.InputSchema))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// canonicalSchema re-serializes raw through a generic interface{} so map
// keys sort deterministically, regardless of how the schema bytes were
// originally formatted. Malformed input schemas hash as their raw bytes
// rather than failing fingerprinting outright.
func canonicalSchema(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
