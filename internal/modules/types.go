package modules

import "context"

// =============================================================================
// Module Interface
// =============================================================================

// Module defines the interface that all modules must implement.
// Each module provides a set of MCP tools.
type Module interface {
	// Metadata
	Name() string
	Description() string
	APIVersion() string

	// Tools - LLM executes, may have side effects
	Tools() []Tool
	ExecuteTool(ctx context.Context, name string, params map[string]any) (string, error)
}

// =============================================================================
// Tool Definition
// =============================================================================

// ToolAnnotations describes the tool's behavior hints per MCP spec (2025-03-26).
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    *bool  `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool  `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool  `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool  `json:"openWorldHint,omitempty"`
}

// Helper to create *bool for annotation fields
func boolPtr(v bool) *bool { return &v }

// ReadOnly builds the annotation set for list/get/search tools: they touch
// the open external world but never change it.
func ReadOnly(title string) *ToolAnnotations {
	return &ToolAnnotations{
		Title:           title,
		ReadOnlyHint:    boolPtr(true),
		DestructiveHint: boolPtr(false),
		IdempotentHint:  boolPtr(true),
		OpenWorldHint:   boolPtr(true),
	}
}

// Mutating builds the annotation set for write tools (post comment,
// create/update PR): not read-only, not idempotent.
func Mutating(title string) *ToolAnnotations {
	return &ToolAnnotations{
		Title:           title,
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(true),
		IdempotentHint:  boolPtr(false),
		OpenWorldHint:   boolPtr(true),
	}
}

// Tool represents an MCP tool definition
type Tool struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema InputSchema      `json:"inputSchema"`
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// InputSchema defines the input parameters for a tool
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single property in the input schema
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Enum        []string  `json:"enum,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Float is a helper for Minimum/Maximum bounds.
func Float(v float64) *float64 { return &v }

// =============================================================================
// Result Types
// =============================================================================

// ToolCallResult represents the result of a tool call
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock represents a content block in the result
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
