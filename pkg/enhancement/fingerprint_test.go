package enhancement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/magictunnel-core/pkg/catalog"
)

func TestCompute_IgnoresSchemaKeyOrder(t *testing.T) {
	a := catalog.ToolDefinition{Name: "t", Description: "d", InputSchema: json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}}}`)}
	b := catalog.ToolDefinition{Name: "t", Description: "d", InputSchema: json.RawMessage(`{"properties":{"x":{"type":"string"}},"type":"object"}`)}
	assert.Equal(t, Compute(a), Compute(b))
}

func TestCompute_DetectsDescriptionChange(t *testing.T) {
	a := catalog.ToolDefinition{Name: "t", Description: "d1"}
	b := catalog.ToolDefinition{Name: "t", Description: "d2"}
	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestCompute_DetectsSchemaChange(t *testing.T) {
	a := catalog.ToolDefinition{Name: "t", InputSchema: json.RawMessage(`{"type":"object"}`)}
	b := catalog.ToolDefinition{Name: "t", InputSchema: json.RawMessage(`{"type":"string"}`)}
	assert.NotEqual(t, Compute(a), Compute(b))
}
