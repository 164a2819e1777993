package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_RoundTrip_String(t *testing.T) {
	id := NewStringID("abc-123")
	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"abc-123"`, string(data))

	var decoded ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)
	assert.Equal(t, "abc-123", decoded.String())
}

func TestID_RoundTrip_Number(t *testing.T) {
	id := NewNumberID(42)
	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `42`, string(data))

	var decoded ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)
	assert.Equal(t, "42", decoded.String())
}

func TestID_RoundTrip_Null(t *testing.T) {
	data, err := json.Marshal(NullID)
	require.NoError(t, err)
	assert.Equal(t, `null`, string(data))

	var decoded ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.IsNull())
}

func TestID_DoesNotCoerceNumberToString(t *testing.T) {
	// A numeric id must not become indistinguishable from the string id
	// "42" — this is the lossy coercion SPEC_FULL.md section 3.1 rules out.
	numeric := NewNumberID(42)
	stringy := NewStringID("42")
	assert.NotEqual(t, numeric, stringy)

	numData, err := json.Marshal(numeric)
	require.NoError(t, err)
	assert.Equal(t, `42`, string(numData))

	strData, err := json.Marshal(stringy)
	require.NoError(t, err)
	assert.Equal(t, `"42"`, string(strData))
}

func TestID_UnmarshalInvalid(t *testing.T) {
	var id ID
	err := json.Unmarshal([]byte(`{"not":"an id"}`), &id)
	assert.Error(t, err)
}

func TestID_UsableAsMapKey(t *testing.T) {
	m := map[ID]string{
		NewStringID("a"):  "first",
		NewNumberID(1):    "second",
		NullID:            "third",
	}
	assert.Equal(t, "first", m[NewStringID("a")])
	assert.Equal(t, "second", m[NewNumberID(1)])
	assert.Equal(t, "third", m[NullID])
}
