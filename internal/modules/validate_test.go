package modules

import (
	"testing"
)

func TestValidateParams_RequiredFields(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"project_key": {Type: "string", Description: "Project key"},
			"repo_slug":   {Type: "string", Description: "Repository slug"},
		},
		Required: []string{"project_key", "repo_slug"},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
		errMsg  string
	}{
		{
			name:    "all required present",
			params:  map[string]any{"project_key": "PROJ", "repo_slug": "my-repo"},
			wantErr: false,
		},
		{
			name:    "missing one required",
			params:  map[string]any{"project_key": "PROJ"},
			wantErr: true,
			errMsg:  "missing required parameter(s): repo_slug",
		},
		{
			name:    "missing all required",
			params:  map[string]any{},
			wantErr: true,
			errMsg:  "missing required parameter(s): project_key, repo_slug",
		},
		{
			name:    "nil params",
			params:  nil,
			wantErr: true,
			errMsg:  "missing required parameter(s): project_key, repo_slug",
		},
		{
			name:    "empty string for required field",
			params:  map[string]any{"project_key": "", "repo_slug": "my-repo"},
			wantErr: true,
			errMsg:  "missing required parameter(s): project_key",
		},
		{
			name:    "nil value for required field",
			params:  map[string]any{"project_key": nil, "repo_slug": "my-repo"},
			wantErr: true,
			errMsg:  "missing required parameter(s): project_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(schema, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if err.Error() != tt.errMsg {
					t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestValidateParams_TypeCheck(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"title":     {Type: "string"},
			"limit":     {Type: "number"},
			"follow":    {Type: "boolean"},
			"reviewers": {Type: "array"},
			"anchor":    {Type: "object"},
		},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
		errMsg  string
	}{
		{
			name:    "all correct types",
			params:  map[string]any{"title": "Fix build", "limit": float64(25), "follow": true, "reviewers": []interface{}{"alice"}, "anchor": map[string]interface{}{"path": "main.go"}},
			wantErr: false,
		},
		{
			name:    "string where number expected",
			params:  map[string]any{"limit": "five"},
			wantErr: true,
			errMsg:  `parameter "limit": expected number, got string`,
		},
		{
			name:    "number where string expected",
			params:  map[string]any{"title": float64(42)},
			wantErr: true,
			errMsg:  `parameter "title": expected string, got float64`,
		},
		{
			name:    "string where boolean expected",
			params:  map[string]any{"follow": "true"},
			wantErr: true,
			errMsg:  `parameter "follow": expected boolean, got string`,
		},
		{
			name:    "string where array expected",
			params:  map[string]any{"reviewers": "alice"},
			wantErr: true,
			errMsg:  `parameter "reviewers": expected array, got string`,
		},
		{
			name:    "string where object expected",
			params:  map[string]any{"anchor": "main.go"},
			wantErr: true,
			errMsg:  `parameter "anchor": expected object, got string`,
		},
		{
			name:    "extra params not in schema pass through",
			params:  map[string]any{"unknown_field": "whatever"},
			wantErr: false,
		},
		{
			name:    "nil value skips type check",
			params:  map[string]any{"title": nil},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(schema, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if err.Error() != tt.errMsg {
					t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestValidateParams_Range(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"limit": {Type: "number", Minimum: Float(1), Maximum: Float(100)},
			"start": {Type: "number", Minimum: Float(0)},
		},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
		errMsg  string
	}{
		{
			name:    "within bounds",
			params:  map[string]any{"limit": float64(25), "start": float64(0)},
			wantErr: false,
		},
		{
			name:    "at lower bound",
			params:  map[string]any{"limit": float64(1)},
			wantErr: false,
		},
		{
			name:    "at upper bound",
			params:  map[string]any{"limit": float64(100)},
			wantErr: false,
		},
		{
			name:    "below minimum",
			params:  map[string]any{"limit": float64(0)},
			wantErr: true,
			errMsg:  `parameter "limit": value 0 below minimum 1`,
		},
		{
			name:    "above maximum",
			params:  map[string]any{"limit": float64(500)},
			wantErr: true,
			errMsg:  `parameter "limit": value 500 above maximum 100`,
		},
		{
			name:    "negative start",
			params:  map[string]any{"start": float64(-1)},
			wantErr: true,
			errMsg:  `parameter "start": value -1 below minimum 0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(schema, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if err.Error() != tt.errMsg {
					t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestValidateParams_Enum(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"state":           {Type: "string", Enum: []string{"OPEN", "MERGED", "DECLINED", "ALL"}},
			"response_format": {Type: "string", Enum: []string{"markdown", "json"}},
		},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid enum value",
			params:  map[string]any{"state": "MERGED"},
			wantErr: false,
		},
		{
			name:    "invalid enum value",
			params:  map[string]any{"state": "CLOSED"},
			wantErr: true,
			errMsg:  `parameter "state": "CLOSED" is not one of OPEN, MERGED, DECLINED, ALL`,
		},
		{
			name:    "case sensitive",
			params:  map[string]any{"response_format": "Markdown"},
			wantErr: true,
			errMsg:  `parameter "response_format": "Markdown" is not one of markdown, json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(schema, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if err.Error() != tt.errMsg {
					t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestValidateParams_NoRequiredNoProperties(t *testing.T) {
	schema := InputSchema{
		Type:       "object",
		Properties: map[string]Property{},
	}

	result, err := ValidateParams(schema, map[string]any{})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result == nil {
		t.Errorf("expected non-nil result")
	}
}

func TestValidateParams_IntegerType(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"pr_id": {Type: "integer"},
		},
	}

	// float64 is accepted for "integer" (JSON numbers are always float64)
	_, err := ValidateParams(schema, map[string]any{"pr_id": float64(3)})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// string is rejected for "integer"
	_, err = ValidateParams(schema, map[string]any{"pr_id": "three"})
	if err == nil {
		t.Errorf("expected error for string as integer")
	}
}

func TestFindTool(t *testing.T) {
	tools := []Tool{
		{Name: "bitbucket_get_projects"},
		{Name: "bitbucket_get_repositories"},
	}

	if _, ok := findTool(tools, "bitbucket_get_repositories"); !ok {
		t.Error("expected to find bitbucket_get_repositories")
	}
	if _, ok := findTool(tools, "bitbucket_delete_everything"); ok {
		t.Error("did not expect to find bitbucket_delete_everything")
	}
}
