// Package jsonrpc implements the wire framing shared by every upstream
// transport: JSON-RPC 2.0 requests, responses, notifications, and the
// canonical request-id type that round-trips the three shapes JSON-RPC
// permits for an id (string, number, null) without lossy coercion.
//
// SPEC_FULL.md section 3.1 resolves spec.md's open question about id
// typing: the source language the proxy was distilled from normalizes
// every id to a string, which is observable and can drop information
// when an upstream or downstream used a numeric id. ID below is a small
// tagged union instead, comparable and hashable so it can key a map
// directly.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// idKind tags which JSON shape an ID was parsed from or should render as.
type idKind uint8

const (
	idKindNull idKind = iota
	idKindString
	idKindNumber
)

// ID is the canonical internal request-id type. The zero value is the
// JSON-RPC null id.
type ID struct {
	kind idKind
	str  string
	num  int64
}

// NewStringID builds a string-shaped id. The proxy generates all of its
// own outbound ids this way, as fresh UUIDs (spec.md section 3/6).
func NewStringID(s string) ID { return ID{kind: idKindString, str: s} }

// NewNumberID builds a number-shaped id, used only when echoing an id
// that arrived from a peer already in that shape.
func NewNumberID(n int64) ID { return ID{kind: idKindNumber, num: n} }

// NullID is the JSON-RPC null id.
var NullID = ID{kind: idKindNull}

// IsNull reports whether this is the null id.
func (id ID) IsNull() bool { return id.kind == idKindNull }

// String renders the id for logging. It does not imply the id was
// string-shaped on the wire.
func (id ID) String() string {
	switch id.kind {
	case idKindString:
		return id.str
	case idKindNumber:
		return fmt.Sprintf("%d", id.num)
	default:
		return "<null>"
	}
}

// MarshalJSON renders the id using whichever JSON shape it was built with.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idKindString:
		return json.Marshal(id.str)
	case idKindNumber:
		return json.Marshal(id.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON records which of the three JSON-RPC id shapes was used so
// MarshalJSON can faithfully reproduce it later.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ID{kind: idKindNull}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("jsonrpc: invalid string id: %w", err)
		}
		*id = ID{kind: idKindString, str: s}
		return nil
	default:
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("jsonrpc: invalid numeric id: %w", err)
		}
		*id = ID{kind: idKindNumber, num: n}
		return nil
	}
}
