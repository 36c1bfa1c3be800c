package modules

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// fakeModule is a minimal module for registry and dispatch tests.
type fakeModule struct {
	name  string
	tools []Tool
	run   func(ctx context.Context, name string, params map[string]any) (string, error)
}

func (m *fakeModule) Name() string        { return m.name }
func (m *fakeModule) Description() string { return "test module" }
func (m *fakeModule) APIVersion() string  { return "latest" }
func (m *fakeModule) Tools() []Tool       { return m.tools }
func (m *fakeModule) ExecuteTool(ctx context.Context, name string, params map[string]any) (string, error) {
	return m.run(ctx, name, params)
}

// withTestRegistry swaps in an empty registry for the duration of a test.
func withTestRegistry(t *testing.T) {
	t.Helper()
	origRegistry, origIndex := registry, toolIndex
	registry = make(map[string]Module)
	toolIndex = make(map[string]Module)
	t.Cleanup(func() {
		registry, toolIndex = origRegistry, origIndex
	})
}

func TestRegisterAndLookup(t *testing.T) {
	withTestRegistry(t)

	m := &fakeModule{
		name: "bitbucket",
		tools: []Tool{
			{Name: "bitbucket_get_projects"},
			{Name: "bitbucket_get_repositories"},
		},
	}
	RegisterModule(m)

	if _, ok := GetModule("bitbucket"); !ok {
		t.Fatal("module not registered")
	}
	if names := ListModules(); len(names) != 1 || names[0] != "bitbucket" {
		t.Errorf("ListModules() = %v", names)
	}

	if _, owner, ok := lookupTool("bitbucket_get_projects"); !ok || owner != Module(m) {
		t.Error("lookupTool failed to resolve owning module")
	}
	if _, _, ok := lookupTool("nonexistent"); ok {
		t.Error("lookupTool resolved unknown tool")
	}
}

func TestAllToolsIncludesBatch(t *testing.T) {
	withTestRegistry(t)

	RegisterModule(&fakeModule{
		name:  "bitbucket",
		tools: []Tool{{Name: "bitbucket_get_projects"}},
	})

	tools := AllTools()
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	found := false
	for _, tool := range tools {
		if tool.Name == "batch" {
			found = true
		}
	}
	if !found {
		t.Error("batch tool missing from AllTools()")
	}
}

func TestRun(t *testing.T) {
	withTestRegistry(t)

	RegisterModule(&fakeModule{
		name: "bitbucket",
		tools: []Tool{
			{
				Name: "bitbucket_get_project",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"project_key": {Type: "string"},
					},
					Required: []string{"project_key"},
				},
			},
		},
		run: func(ctx context.Context, name string, params map[string]any) (string, error) {
			return "# Project " + params["project_key"].(string), nil
		},
	})

	t.Run("success", func(t *testing.T) {
		result, err := Run(context.Background(), "bitbucket_get_project", map[string]any{"project_key": "PROJ"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
		}
		if result.Content[0].Text != "# Project PROJ" {
			t.Errorf("unexpected result: %s", result.Content[0].Text)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		result, err := Run(context.Background(), "bitbucket_teleport", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Fatal("expected IsError for unknown tool")
		}
		if !strings.Contains(result.Content[0].Text, "Unknown tool") {
			t.Errorf("unexpected message: %s", result.Content[0].Text)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		result, err := Run(context.Background(), "bitbucket_get_project", map[string]any{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Fatal("expected IsError for missing param")
		}
		if !strings.Contains(result.Content[0].Text, "project_key") {
			t.Errorf("unexpected message: %s", result.Content[0].Text)
		}
	})
}

func TestDetectCycle(t *testing.T) {
	tests := []struct {
		name      string
		tasks     map[string]*taskState
		wantCycle bool
	}{
		{
			"no cycle (linear)",
			map[string]*taskState{
				"a": {cmd: BatchCommand{ID: "a", After: nil}},
				"b": {cmd: BatchCommand{ID: "b", After: []string{"a"}}},
				"c": {cmd: BatchCommand{ID: "c", After: []string{"b"}}},
			},
			false,
		},
		{
			"no cycle (independent)",
			map[string]*taskState{
				"a": {cmd: BatchCommand{ID: "a"}},
				"b": {cmd: BatchCommand{ID: "b"}},
			},
			false,
		},
		{
			"cycle A→B→A",
			map[string]*taskState{
				"a": {cmd: BatchCommand{ID: "a", After: []string{"b"}}},
				"b": {cmd: BatchCommand{ID: "b", After: []string{"a"}}},
			},
			true,
		},
		{
			"self-reference",
			map[string]*taskState{
				"a": {cmd: BatchCommand{ID: "a", After: []string{"a"}}},
			},
			true,
		},
		{
			"empty tasks",
			map[string]*taskState{},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := detectCycle(tt.tasks)
			if tt.wantCycle && result == "" {
				t.Error("expected cycle, got empty string")
			}
			if !tt.wantCycle && result != "" {
				t.Errorf("expected no cycle, got %q", result)
			}
		})
	}
}

func TestBatchValidation(t *testing.T) {
	withTestRegistry(t)

	tests := []struct {
		name     string
		commands string
		wantErr  string
	}{
		{
			"invalid JSON",
			`{not json`,
			"JSON parse error",
		},
		{
			"missing id",
			`{"tool":"bitbucket_get_projects"}`,
			"id field is required",
		},
		{
			"missing tool",
			`{"id":"a"}`,
			"tool field is required",
		},
		{
			"duplicate id",
			"{\"id\":\"a\",\"tool\":\"x\"}\n{\"id\":\"a\",\"tool\":\"y\"}",
			"duplicate id: a",
		},
		{
			"unknown dependency",
			`{"id":"a","tool":"x","after":["ghost"]}`,
			"unknown dependency ghost",
		},
		{
			"circular dependency",
			"{\"id\":\"a\",\"tool\":\"x\",\"after\":[\"b\"]}\n{\"id\":\"b\",\"tool\":\"y\",\"after\":[\"a\"]}",
			"circular dependency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Batch(context.Background(), tt.commands)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected IsError")
			}
			if !strings.Contains(result.Content[0].Text, tt.wantErr) {
				t.Errorf("expected %q in %q", tt.wantErr, result.Content[0].Text)
			}
		})
	}
}

func TestBatchExecution(t *testing.T) {
	withTestRegistry(t)

	RegisterModule(&fakeModule{
		name: "bitbucket",
		tools: []Tool{
			{Name: "bitbucket_get_repositories"},
			{Name: "bitbucket_get_branches"},
		},
		run: func(ctx context.Context, name string, params map[string]any) (string, error) {
			if name == "bitbucket_get_repositories" {
				return `{"values":[{"slug":"core"}]}`, nil
			}
			return "branches of " + params["repo_slug"].(string), nil
		},
	})

	commands := strings.Join([]string{
		`{"id":"repos","tool":"bitbucket_get_repositories","output":true}`,
		`{"id":"branches","tool":"bitbucket_get_branches","params":{"repo_slug":"${repos.results[0].slug}"},"after":["repos"],"output":true}`,
	}, "\n")

	result, err := Batch(context.Background(), commands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected batch error: %s", result.Content[0].Text)
	}

	text := result.Content[0].Text
	if !strings.Contains(text, "branches of core") {
		t.Errorf("variable substitution did not feed dependent task: %s", text)
	}
}

func TestBatchSkipsDependentsOfFailedTask(t *testing.T) {
	withTestRegistry(t)

	RegisterModule(&fakeModule{
		name: "bitbucket",
		tools: []Tool{
			{Name: "bitbucket_get_project"},
			{Name: "bitbucket_get_repositories"},
		},
		run: func(ctx context.Context, name string, params map[string]any) (string, error) {
			if name == "bitbucket_get_project" {
				return "", context.DeadlineExceeded
			}
			return "ok", nil
		},
	})

	commands := strings.Join([]string{
		`{"id":"proj","tool":"bitbucket_get_project"}`,
		`{"id":"repos","tool":"bitbucket_get_repositories","after":["proj"],"output":true}`,
	}, "\n")

	result, err := Batch(context.Background(), commands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "skipped due to dependency failure") {
		t.Errorf("dependent task was not skipped: %s", text)
	}
}

func TestResolveStringVariables(t *testing.T) {
	store := &sync.Map{}
	store.Store("repos", `[{"slug":"core-api","name":"Core API"}]`)
	store.Store("search", `{"values":[{"path":"cmd/main.go"}]}`)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"resolve from array",
			"${repos.results[0].slug}",
			"core-api",
		},
		{
			"resolve from object with values key",
			"${search.results[0].path}",
			"cmd/main.go",
		},
		{
			"no variable reference",
			"plain string",
			"plain string",
		},
		{
			"unknown task ID",
			"${unknown.results[0].slug}",
			"${unknown.results[0].slug}",
		},
		{
			"out of bounds index",
			"${repos.results[99].slug}",
			"${repos.results[99].slug}",
		},
		{
			"embedded in text",
			"Repo is ${repos.results[0].slug} here",
			"Repo is core-api here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveStringVariables(tt.input, store)
			if got != tt.want {
				t.Errorf("resolveStringVariables(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveVariables(t *testing.T) {
	store := &sync.Map{}
	store.Store("task1", `[{"id":"abc"}]`)

	t.Run("nil params", func(t *testing.T) {
		got := resolveVariables(nil, store)
		if got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})

	t.Run("nested map with variable", func(t *testing.T) {
		params := map[string]interface{}{
			"commit_id": "${task1.results[0].id}",
			"nested": map[string]interface{}{
				"ref": "${task1.results[0].id}",
			},
		}
		got := resolveVariables(params, store)
		if got["commit_id"] != "abc" {
			t.Errorf("commit_id = %q, want %q", got["commit_id"], "abc")
		}
		nested := got["nested"].(map[string]interface{})
		if nested["ref"] != "abc" {
			t.Errorf("nested.ref = %q, want %q", nested["ref"], "abc")
		}
	})

	t.Run("array with variable", func(t *testing.T) {
		params := map[string]interface{}{
			"refs": []interface{}{"${task1.results[0].id}", "static"},
		}
		got := resolveVariables(params, store)
		refs := got["refs"].([]interface{})
		if refs[0] != "abc" {
			t.Errorf("refs[0] = %q, want %q", refs[0], "abc")
		}
		if refs[1] != "static" {
			t.Errorf("refs[1] = %q, want %q", refs[1], "static")
		}
	})
}
