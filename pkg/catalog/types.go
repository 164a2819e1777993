// Package catalog builds, versions, and persists the per-upstream
// CapabilityFile documents spec.md section 4.D describes: the generated
// tool catalog downstream clients see, namespaced per upstream and
// structurally diffed against its last on-disk copy before any rewrite.
package catalog

import "encoding/json"

// Routing describes how a catalog tool call is dispatched back to its
// upstream.
type Routing struct {
	Type   string        `yaml:"type" json:"type"`
	Config RoutingConfig `yaml:"config" json:"config"`
}

// RoutingConfig carries the fields needed to re-invoke the original
// upstream tool.
type RoutingConfig struct {
	ServerName string `yaml:"server_name" json:"server_name"`
	ToolName   string `yaml:"tool_name" json:"tool_name"`
	Endpoint   string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Method     string `yaml:"method" json:"method"`
	Timeout    int    `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	RetryCount int    `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`
}

// ToolDefinition is the namespaced, catalog-facing description of one
// upstream tool (spec.md section 3).
type ToolDefinition struct {
	Name         string            `yaml:"name" json:"name"`
	Description  string            `yaml:"description" json:"description"`
	InputSchema  json.RawMessage   `yaml:"input_schema" json:"input_schema"`
	Routing      Routing           `yaml:"routing" json:"routing"`
	Annotations  map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
	Enabled      bool              `yaml:"enabled" json:"enabled"`
	Hidden       bool              `yaml:"hidden" json:"hidden"`
	PromptRefs   []string          `yaml:"prompt_refs,omitempty" json:"prompt_refs,omitempty"`
	ResourceRefs []string          `yaml:"resource_refs,omitempty" json:"resource_refs,omitempty"`
}

// Metadata is the deterministic-per-upstream header of a CapabilityFile.
type Metadata struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version" json:"version"`
	Description string   `yaml:"description" json:"description"`
	Author      string   `yaml:"author" json:"author"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// CapabilityFile is the full per-upstream generated document.
type CapabilityFile struct {
	Metadata Metadata         `yaml:"metadata" json:"metadata"`
	Tools    []ToolDefinition `yaml:"tools" json:"tools"`
}
