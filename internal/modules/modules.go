package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"bbmcp/server/internal/middleware"
	"bbmcp/server/internal/observability"
)

// =============================================================================
// Registry
// =============================================================================

// registry holds all registered modules, toolIndex maps every tool name to
// its owning module for direct dispatch.
var (
	registry  = make(map[string]Module)
	toolIndex = make(map[string]Module)
)

// RegisterModule adds a module and its tools to the registry.
func RegisterModule(m Module) {
	registry[m.Name()] = m
	for _, t := range m.Tools() {
		toolIndex[t.Name] = m
	}
}

// GetModule returns a module by name
func GetModule(name string) (Module, bool) {
	m, ok := registry[name]
	return m, ok
}

// ListModules returns all registered module names
func ListModules() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// AllTools returns every registered tool plus the batch meta tool,
// for tools/list.
func AllTools() []Tool {
	var tools []Tool
	for _, m := range registry {
		tools = append(tools, m.Tools()...)
	}
	tools = append(tools, batchTool())
	return tools
}

// lookupTool finds a tool definition and its owning module by tool name.
func lookupTool(name string) (Tool, Module, bool) {
	m, ok := toolIndex[name]
	if !ok {
		return Tool{}, nil, false
	}
	t, ok := findTool(m.Tools(), name)
	return t, m, ok
}

// =============================================================================
// Tool Execution
// =============================================================================

// toolTimeout is the maximum duration for a single tool execution.
const toolTimeout = 30 * time.Second

// Run executes a single registered tool by name.
func Run(ctx context.Context, toolName string, params map[string]interface{}) (*ToolCallResult, error) {
	start := time.Now()

	tool, m, ok := lookupTool(toolName)
	if !ok {
		return &ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("Unknown tool: %s", toolName)}},
			IsError: true,
		}, nil
	}

	// Validate params against the tool's InputSchema
	validated, err := ValidateParams(tool.InputSchema, params)
	if err != nil {
		return &ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}
	params = validated

	// Apply timeout to prevent external API calls from hanging indefinitely
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	result, err := m.ExecuteTool(ctx, toolName, params)
	durationMs := time.Since(start).Milliseconds()
	requestID := middleware.GetRequestID(ctx)

	if err != nil {
		errMsg := err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			errMsg = fmt.Sprintf("Request to %s timed out after %s. The remote service did not respond in time.", m.Name(), toolTimeout)
		}
		observability.LogToolCall(requestID, toolName, durationMs, "error", errMsg)
		return &ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: errMsg}},
			IsError: true,
		}, nil
	}

	observability.LogToolCall(requestID, toolName, durationMs, "success", "")
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: result}},
	}, nil
}

// =============================================================================
// Batch Execution (DAG-based parallel execution)
// =============================================================================

// maxBatchSize caps the number of commands in a single batch call.
const maxBatchSize = 10

// batchTool returns the definition of the batch meta tool.
func batchTool() Tool {
	desc := `Execute multiple tools in batch (JSONL format, with dependency and parallel execution support).

[Fields]
- id (required): Task identifier
- tool (required): Tool name
- params: Parameters
- after: Dependency task ID array (waits for these to complete before executing)
- output: If true, includes result in response

[Variable References] Access via ${id.results[index].field}

[Limits]
- Maximum 10 commands per batch

[Execution Rules]
- No after -> parallel execution
- With after -> executes after dependent tasks complete
- Circular dependency -> error
- Dependent task failure -> dependents are skipped`

	return Tool{
		Name:        "batch",
		Description: desc,
		Annotations: Mutating("Batch Execute"),
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"commands": {
					Type:        "string",
					Description: "Commands in JSONL format",
				},
			},
			Required: []string{"commands"},
		},
	}
}

// BatchCommand represents a single command in batch execution
type BatchCommand struct {
	ID     string                 `json:"id"`               // Task identifier (required)
	Tool   string                 `json:"tool"`             // Tool name (required)
	Params map[string]interface{} `json:"params,omitempty"` // Tool parameters
	After  []string               `json:"after,omitempty"`  // Dependency task IDs
	Output bool                   `json:"output,omitempty"` // Include result in response
}

// BatchResponse represents the batch execution response
type BatchResponse struct {
	Results map[string]string `json:"results,omitempty"` // ID -> result (for output:true tasks)
	Errors  map[string]string `json:"errors,omitempty"`  // ID -> error message
}

// taskState holds execution state for a task
type taskState struct {
	cmd     BatchCommand
	result  string
	err     error
	done    chan struct{}
	skipped bool
}

func batchError(text string) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

// Batch executes multiple tools from JSONL input with DAG-based parallel
// execution.
func Batch(ctx context.Context, commands string) (*ToolCallResult, error) {
	// Parse commands
	lines := strings.Split(strings.TrimSpace(commands), "\n")
	tasks := make(map[string]*taskState)
	order := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var cmd BatchCommand
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			return batchError(fmt.Sprintf("JSON parse error: %v", err)), nil
		}
		if cmd.ID == "" {
			return batchError("id field is required for all commands"), nil
		}
		if cmd.Tool == "" {
			return batchError(fmt.Sprintf("tool field is required (task %s)", cmd.ID)), nil
		}
		if _, exists := tasks[cmd.ID]; exists {
			return batchError(fmt.Sprintf("duplicate id: %s", cmd.ID)), nil
		}

		tasks[cmd.ID] = &taskState{
			cmd:  cmd,
			done: make(chan struct{}),
		}
		order = append(order, cmd.ID)
	}

	if len(order) > maxBatchSize {
		return batchError(fmt.Sprintf("batch too large: %d commands (max %d)", len(order), maxBatchSize)), nil
	}

	// Validate dependencies exist
	for _, state := range tasks {
		for _, dep := range state.cmd.After {
			if _, exists := tasks[dep]; !exists {
				return batchError(fmt.Sprintf("unknown dependency %s for task %s", dep, state.cmd.ID)), nil
			}
		}
	}

	// Detect circular dependencies
	if cycle := detectCycle(tasks); cycle != "" {
		return batchError(fmt.Sprintf("circular dependency detected: %s", cycle)), nil
	}

	// Execute tasks with goroutines
	var wg sync.WaitGroup
	resultStore := &sync.Map{} // Store results for variable substitution

	for _, id := range order {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			executeTask(ctx, taskID, tasks, resultStore)
		}(id)
	}

	wg.Wait()

	// Build response
	response := BatchResponse{
		Results: make(map[string]string),
		Errors:  make(map[string]string),
	}
	for _, id := range order {
		state := tasks[id]
		switch {
		case state.err != nil:
			response.Errors[id] = state.err.Error()
		case state.skipped:
			response.Errors[id] = "skipped due to dependency failure"
		case state.cmd.Output:
			response.Results[id] = state.result
		}
	}

	// Clean up empty maps
	if len(response.Errors) == 0 {
		response.Errors = nil
	}
	if len(response.Results) == 0 {
		response.Results = nil
	}

	jsonBytes, _ := json.Marshal(response)
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: string(jsonBytes)}},
	}, nil
}

// detectCycle detects circular dependencies using DFS
func detectCycle(tasks map[string]*taskState) string {
	visited := make(map[string]int) // 0: unvisited, 1: visiting, 2: visited
	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		if visited[id] == 2 {
			return false
		}
		if visited[id] == 1 {
			// Found cycle
			cyclePath = append(cyclePath, id)
			return true
		}

		visited[id] = 1
		cyclePath = append(cyclePath, id)

		for _, dep := range tasks[id].cmd.After {
			if dfs(dep) {
				return true
			}
		}

		cyclePath = cyclePath[:len(cyclePath)-1]
		visited[id] = 2
		return false
	}

	for id := range tasks {
		cyclePath = nil
		if dfs(id) {
			return strings.Join(cyclePath, " -> ")
		}
	}
	return ""
}

// executeTask executes a single task after waiting for dependencies
func executeTask(ctx context.Context, taskID string, tasks map[string]*taskState, resultStore *sync.Map) {
	state := tasks[taskID]
	defer close(state.done)

	// Wait for dependencies
	for _, depID := range state.cmd.After {
		depState := tasks[depID]
		<-depState.done // Wait for dependency to complete

		// Check if dependency failed or was skipped
		if depState.err != nil || depState.skipped {
			state.skipped = true
			return
		}
	}

	// Resolve variable references in params
	resolvedParams := resolveVariables(state.cmd.Params, resultStore)

	// Execute the tool
	result, err := Run(ctx, state.cmd.Tool, resolvedParams)
	if err != nil {
		state.err = err
		return
	}

	if result.IsError {
		state.err = fmt.Errorf("%s", result.Content[0].Text)
		return
	}

	state.result = result.Content[0].Text

	// Store result for variable substitution by dependent tasks
	resultStore.Store(taskID, state.result)
}

// resolveVariables replaces ${id.results[N].field} references with actual values
func resolveVariables(params map[string]interface{}, resultStore *sync.Map) map[string]interface{} {
	if params == nil {
		return nil
	}

	resolved := make(map[string]interface{})
	for key, value := range params {
		resolved[key] = resolveValue(value, resultStore)
	}
	return resolved
}

// resolveValue recursively resolves variable references in a value
func resolveValue(value interface{}, resultStore *sync.Map) interface{} {
	switch v := value.(type) {
	case string:
		return resolveStringVariables(v, resultStore)
	case map[string]interface{}:
		resolved := make(map[string]interface{})
		for k, val := range v {
			resolved[k] = resolveValue(val, resultStore)
		}
		return resolved
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, val := range v {
			resolved[i] = resolveValue(val, resultStore)
		}
		return resolved
	default:
		return value
	}
}

// Variable reference pattern: ${taskId.results[index].field}
var varRefPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\.results\[(\d+)\]\.([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// resolveStringVariables resolves variable references in a string
// Format: ${taskId.results[index].field} - extracts from JSON results array
func resolveStringVariables(s string, resultStore *sync.Map) string {
	return varRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varRefPattern.FindStringSubmatch(match)
		if len(parts) != 4 {
			return match
		}

		taskID := parts[1]
		index := 0
		fmt.Sscanf(parts[2], "%d", &index)
		field := parts[3]

		resultVal, ok := resultStore.Load(taskID)
		if !ok {
			return match // Keep original if not found
		}

		resultStr, ok := resultVal.(string)
		if !ok {
			return match
		}

		// Parse JSON and extract value.
		// Result can be a JSON array [...] or an object with "values"/"results" keys
		var results []interface{}
		if err := json.Unmarshal([]byte(resultStr), &results); err != nil {
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(resultStr), &data); err != nil {
				return match
			}
			var ok bool
			results, ok = data["results"].([]interface{})
			if !ok {
				results, ok = data["values"].([]interface{})
				if !ok {
					return match
				}
			}
		}

		if index >= len(results) {
			return match
		}

		item, ok := results[index].(map[string]interface{})
		if !ok {
			return match
		}

		val, ok := item[field]
		if !ok {
			return match
		}

		if strVal, ok := val.(string); ok {
			return strVal
		}
		return fmt.Sprintf("%v", val)
	})
}
