package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"

	"bbmcp/server/internal/modules"
	"bbmcp/server/pkg/bitbucketapi"
)

const bitbucketAPIVersion = "latest"

var toStrings = modules.ToStringSlice

// BitbucketModule implements the Module interface for the Bitbucket Data
// Center REST API. The client is injected at construction so tests can point
// it at a fake server.
type BitbucketModule struct {
	client *bitbucketapi.Client
}

func New(client *bitbucketapi.Client) *BitbucketModule {
	return &BitbucketModule{client: client}
}

func (m *BitbucketModule) Name() string { return "bitbucket" }
func (m *BitbucketModule) Description() string {
	return "Bitbucket Data Center API - Projects, repositories, branches, commits, pull requests, file browsing, and code search"
}
func (m *BitbucketModule) APIVersion() string { return bitbucketAPIVersion }

func (m *BitbucketModule) Tools() []modules.Tool {
	return toolDefinitions
}

func (m *BitbucketModule) ExecuteTool(ctx context.Context, name string, params map[string]any) (string, error) {
	handler, ok := toolHandlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return handler(m, ctx, params)
}

type toolHandler func(m *BitbucketModule, ctx context.Context, params map[string]any) (string, error)

var toolHandlers = map[string]toolHandler{
	"bitbucket_get_projects":              (*BitbucketModule).getProjects,
	"bitbucket_get_project":               (*BitbucketModule).getProject,
	"bitbucket_get_repositories":          (*BitbucketModule).getRepositories,
	"bitbucket_get_repository":            (*BitbucketModule).getRepository,
	"bitbucket_get_branches":              (*BitbucketModule).getBranches,
	"bitbucket_get_tags":                  (*BitbucketModule).getTags,
	"bitbucket_get_commits":               (*BitbucketModule).getCommits,
	"bitbucket_get_commit":                (*BitbucketModule).getCommit,
	"bitbucket_get_pull_requests":         (*BitbucketModule).getPullRequests,
	"bitbucket_get_pull_request":          (*BitbucketModule).getPullRequest,
	"bitbucket_get_pull_request_comments": (*BitbucketModule).getPullRequestComments,
	"bitbucket_get_pull_request_changes":  (*BitbucketModule).getPullRequestChanges,
	"bitbucket_get_pull_request_diff":     (*BitbucketModule).getPullRequestDiff,
	"bitbucket_post_pull_request_comment": (*BitbucketModule).postPullRequestComment,
	"bitbucket_create_pull_request":       (*BitbucketModule).createPullRequest,
	"bitbucket_update_pull_request":       (*BitbucketModule).updatePullRequest,
	"bitbucket_get_required_reviewers":    (*BitbucketModule).getRequiredReviewers,
	"bitbucket_browse":                    (*BitbucketModule).browse,
	"bitbucket_get_file_content":          (*BitbucketModule).getFileContent,
	"bitbucket_list_files":                (*BitbucketModule).listFiles,
	"bitbucket_code_search":               (*BitbucketModule).codeSearch,
}

// =============================================================================
// Parameter extraction
// =============================================================================

// Parameters arrive as a decoded JSON object: strings, float64 numbers,
// bools, []any, map[string]any. Schema validation has already run, so these
// accessors only need to default missing optionals.

func strParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func intParam(params map[string]any, key string, def int) int {
	if n, ok := params[key].(float64); ok {
		return int(n)
	}
	return def
}

func boolParam(params map[string]any, key string) (bool, bool) {
	b, ok := params[key].(bool)
	return b, ok
}

func sliceParam(params map[string]any, key string) []any {
	v, _ := params[key].([]any)
	return v
}

func responseFormat(params map[string]any) string {
	if f, ok := params[responseFormatKey].(string); ok && f != "" {
		return f
	}
	return formatMarkdown
}

// renderResponse returns the markdown rendering or, when json output is
// requested, a pretty-printed echo of the same decoded data.
func renderResponse(format, markdown string, data any) (string, error) {
	if format == formatJSON {
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal response: %w", err)
		}
		return string(b), nil
	}
	return markdown, nil
}
