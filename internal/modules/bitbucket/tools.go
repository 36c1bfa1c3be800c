package bitbucket

import (
	"bbmcp/server/internal/modules"
)

const (
	responseFormatKey = "response_format"
	formatMarkdown    = "markdown"
	formatJSON        = "json"
)

// Shared property fragments. Most tools address a repository and page
// through a uniform envelope, so the schema pieces are built once.

func projectKeyProp() modules.Property {
	return modules.Property{Type: "string", Description: "The project key (e.g. 'PROJ')"}
}

func repoSlugProp() modules.Property {
	return modules.Property{Type: "string", Description: "The repository slug"}
}

func startProp() modules.Property {
	return modules.Property{Type: "number", Description: "Pagination start index", Minimum: modules.Float(0)}
}

func limitProp(max float64) modules.Property {
	return modules.Property{
		Type:        "number",
		Description: "Max results to return",
		Minimum:     modules.Float(1),
		Maximum:     modules.Float(max),
	}
}

func pullRequestIDProp() modules.Property {
	return modules.Property{Type: "integer", Description: "The pull request ID number"}
}

func responseFormatProp() modules.Property {
	return modules.Property{
		Type:        "string",
		Description: "Output format: markdown (default) or json",
		Enum:        []string{formatMarkdown, formatJSON},
	}
}

var toolDefinitions = []modules.Tool{
	// =========================================================================
	// Projects & Repositories
	// =========================================================================
	{
		Name:        "bitbucket_get_projects",
		Description: "Get a list of Bitbucket projects. Returns projects the authenticated user has access to. Use `name` to filter by project name, and `permission` to filter by access level.",
		Annotations: modules.ReadOnly("Get Projects"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"name":            {Type: "string", Description: "Filter projects by name (substring match)"},
				"permission":      {Type: "string", Description: "Filter by permission: PROJECT_VIEW, PROJECT_ADMIN, REPO_READ, etc."},
				"start":           startProp(),
				"limit":           limitProp(1000),
				responseFormatKey: responseFormatProp(),
			},
		},
	},
	{
		Name:        "bitbucket_get_project",
		Description: "Get details of a specific Bitbucket project by its key.",
		Annotations: modules.ReadOnly("Get Project"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key"},
		},
	},
	{
		Name:        "bitbucket_get_repositories",
		Description: "Get repositories for a Bitbucket project. Lists all repositories within the specified project that the authenticated user has access to.",
		Annotations: modules.ReadOnly("Get Repositories"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"start":           startProp(),
				"limit":           limitProp(1000),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key"},
		},
	},
	{
		Name:        "bitbucket_get_repository",
		Description: "Get details of a specific repository including clone URLs and configuration.",
		Annotations: modules.ReadOnly("Get Repository"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug"},
		},
	},
	// =========================================================================
	// Branches & Tags
	// =========================================================================
	{
		Name:        "bitbucket_get_branches",
		Description: "List branches in a repository. Returns branches with their latest commit hash. Use `filter_text` to search for branches by name.",
		Annotations: modules.ReadOnly("Get Branches"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"filter_text":     {Type: "string", Description: "Filter branches by name (substring match)"},
				"order_by":        {Type: "string", Description: "ALPHABETICAL or MODIFICATION (default: MODIFICATION)", Enum: []string{"ALPHABETICAL", "MODIFICATION"}},
				"start":           startProp(),
				"limit":           limitProp(1000),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug"},
		},
	},
	{
		Name:        "bitbucket_get_tags",
		Description: "List tags in a repository. Returns tags with their associated commit hash. Use `filter_text` to search for tags by name.",
		Annotations: modules.ReadOnly("Get Tags"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"filter_text":     {Type: "string", Description: "Filter tags by name (substring match)"},
				"order_by":        {Type: "string", Description: "ALPHABETICAL or MODIFICATION", Enum: []string{"ALPHABETICAL", "MODIFICATION"}},
				"start":           startProp(),
				"limit":           limitProp(1000),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug"},
		},
	},
	// =========================================================================
	// Commits
	// =========================================================================
	{
		Name:        "bitbucket_get_commits",
		Description: "Get commits for a repository. Lists commits in reverse chronological order. Use `since`/`until` to specify a commit range (like git log since..until). Use `path` to only show commits that modified a specific file.",
		Annotations: modules.ReadOnly("Get Commits"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"path":            {Type: "string", Description: "Filter commits affecting this file path"},
				"since":           {Type: "string", Description: "Commit hash or ref — exclude commits reachable from this"},
				"until":           {Type: "string", Description: "Commit hash or ref — include commits reachable from this (default: default branch HEAD)"},
				"start":           startProp(),
				"limit":           limitProp(100),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug"},
		},
	},
	{
		Name:        "bitbucket_get_commit",
		Description: "Get details of a single commit including the full commit message, author, and parents.",
		Annotations: modules.ReadOnly("Get Commit"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"commit_id":       {Type: "string", Description: "The commit hash (full or abbreviated)"},
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug", "commit_id"},
		},
	},
	// =========================================================================
	// Pull Requests
	// =========================================================================
	{
		Name:        "bitbucket_get_pull_requests",
		Description: "List pull requests for a repository. Returns pull requests filtered by state, direction, and text. Defaults to showing OPEN pull requests ordered by newest first.",
		Annotations: modules.ReadOnly("Get Pull Requests"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"state":           {Type: "string", Description: "PR state filter (default: OPEN)", Enum: []string{"OPEN", "DECLINED", "MERGED", "ALL"}},
				"direction":       {Type: "string", Description: "INCOMING (to this repo) or OUTGOING (from this repo)", Enum: []string{"INCOMING", "OUTGOING"}},
				"order":           {Type: "string", Description: "Order: NEWEST or OLDEST", Enum: []string{"NEWEST", "OLDEST"}},
				"filter_text":     {Type: "string", Description: "Filter PRs by title text"},
				"start":           startProp(),
				"limit":           limitProp(100),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug"},
		},
	},
	{
		Name:        "bitbucket_get_pull_request",
		Description: "Get full details of a specific pull request including description and reviewers.",
		Annotations: modules.ReadOnly("Get Pull Request"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"pull_request_id": pullRequestIDProp(),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug", "pull_request_id"},
		},
	},
	{
		Name:        "bitbucket_get_pull_request_comments",
		Description: "Get comments and activity for a pull request. Returns all activities (comments, approvals, status changes) on the PR, including inline code comments with file path and line information.",
		Annotations: modules.ReadOnly("Get PR Comments"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"pull_request_id": pullRequestIDProp(),
				"start":           startProp(),
				"limit":           limitProp(100),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug", "pull_request_id"},
		},
	},
	{
		Name:        "bitbucket_get_pull_request_changes",
		Description: "Get the list of files changed in a pull request. Shows which files were added, modified, deleted, or renamed in the PR.",
		Annotations: modules.ReadOnly("Get PR Changes"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"pull_request_id": pullRequestIDProp(),
				"change_scope":    {Type: "string", Description: "UNREVIEWED to only show unreviewed changes, or ALL", Enum: []string{"UNREVIEWED", "ALL"}},
				"with_comments":   {Type: "boolean", Description: "Include comment counts per file"},
				"start":           startProp(),
				"limit":           limitProp(1000),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug", "pull_request_id"},
		},
	},
	{
		Name:        "bitbucket_get_pull_request_diff",
		Description: "Get the text diff for a specific file in a pull request. Returns the unified diff showing additions and deletions for the specified file.",
		Annotations: modules.ReadOnly("Get PR Diff"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"pull_request_id": pullRequestIDProp(),
				"path":            {Type: "string", Description: "File path to get the diff for"},
				"context_lines":   {Type: "integer", Description: "Number of context lines around changes (default: 10)"},
				"diff_type":       {Type: "string", Description: "EFFECTIVE (merge result) or RANGE (commit range)", Enum: []string{"EFFECTIVE", "RANGE"}},
				"whitespace":      {Type: "string", Description: "Whitespace handling: SHOW, IGNORE_ALL, or IGNORE_TRAILING"},
			},
			Required: []string{"project_key", "repository_slug", "pull_request_id", "path"},
		},
	},
	{
		Name:        "bitbucket_post_pull_request_comment",
		Description: "Post a comment on a pull request. Can post general comments, reply to existing comments, or add inline code comments at a specific file and line.",
		Annotations: modules.Mutating("Post PR Comment"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"pull_request_id": pullRequestIDProp(),
				"text":            {Type: "string", Description: "The comment text (supports Markdown)"},
				"parent_id":       {Type: "integer", Description: "Parent comment ID to reply to"},
				"file_path":       {Type: "string", Description: "File path for inline comment"},
				"line":            {Type: "integer", Description: "Line number for inline comment"},
				"line_type":       {Type: "string", Description: "ADDED, REMOVED, or CONTEXT for inline comments", Enum: []string{"ADDED", "REMOVED", "CONTEXT"}},
			},
			Required: []string{"project_key", "repository_slug", "pull_request_id", "text"},
		},
	},
	{
		Name:        "bitbucket_create_pull_request",
		Description: "Create a new pull request. Creates a PR from `from_ref` branch to `to_ref` branch. Optionally add a description and reviewers.",
		Annotations: modules.Mutating("Create Pull Request"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"title":           {Type: "string", Description: "PR title"},
				"from_ref":        {Type: "string", Description: "Source branch (e.g. 'feature/my-branch')"},
				"to_ref":          {Type: "string", Description: "Target branch (e.g. 'main' or 'develop')"},
				"description":     {Type: "string", Description: "PR description (supports Markdown)"},
				"reviewers":       {Type: "array", Description: "List of reviewer usernames to add", Items: &modules.Property{Type: "string"}},
			},
			Required: []string{"project_key", "repository_slug", "title", "from_ref", "to_ref"},
		},
	},
	{
		Name:        "bitbucket_update_pull_request",
		Description: "Update a pull request's title, description, or reviewers. Requires the current PR `version` number for optimistic locking — fetch it first using bitbucket_get_pull_request.",
		Annotations: modules.Mutating("Update Pull Request"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"pull_request_id": pullRequestIDProp(),
				"version":         {Type: "integer", Description: "Current version of the PR (for optimistic locking — get from bitbucket_get_pull_request)"},
				"title":           {Type: "string", Description: "New PR title"},
				"description":     {Type: "string", Description: "New PR description"},
				"reviewers":       {Type: "array", Description: "Full list of reviewer usernames (replaces existing)", Items: &modules.Property{Type: "string"}},
			},
			Required: []string{"project_key", "repository_slug", "pull_request_id", "version"},
		},
	},
	{
		Name:        "bitbucket_get_required_reviewers",
		Description: "Get required reviewers for a potential pull request between two branches. Use this before creating a PR to discover mandatory reviewers configured via merge checks or default reviewer rules.",
		Annotations: modules.ReadOnly("Get Required Reviewers"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"source_ref":      {Type: "string", Description: "Source branch ref ID"},
				"target_ref":      {Type: "string", Description: "Target branch ref ID"},
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug", "source_ref", "target_ref"},
		},
	},
	// =========================================================================
	// File Browsing
	// =========================================================================
	{
		Name:        "bitbucket_browse",
		Description: "Browse the file tree of a repository. Lists files and directories at the given path. If `path` points to a file, returns its content instead. Use `at` to browse a specific branch or commit.",
		Annotations: modules.ReadOnly("Browse Files"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"path":            {Type: "string", Description: "Path to browse (e.g. 'src/main/java'). Leave empty for root."},
				"at":              {Type: "string", Description: "Branch, tag, or commit to browse at (default: default branch)"},
				"start":           startProp(),
				"limit":           limitProp(1000),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug"},
		},
	},
	{
		Name:        "bitbucket_get_file_content",
		Description: "Get the raw content of a file from a repository. Returns the full file content as text. Use `at` to fetch from a specific branch, tag, or commit hash.",
		Annotations: modules.ReadOnly("Get File Content"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"path":            {Type: "string", Description: "File path (e.g. 'src/main/App.java')"},
				"at":              {Type: "string", Description: "Branch, tag, or commit (default: default branch)"},
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug", "path"},
		},
	},
	{
		Name:        "bitbucket_list_files",
		Description: "Recursively list all file paths in a repository or sub-directory. Returns a flat list of all file paths (no directories). Useful for understanding the project structure or finding files by name.",
		Annotations: modules.ReadOnly("List Files"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"project_key":     projectKeyProp(),
				"repository_slug": repoSlugProp(),
				"path":            {Type: "string", Description: "Sub-path to list from (default: repository root)"},
				"at":              {Type: "string", Description: "Branch, tag, or commit (default: default branch)"},
				"start":           startProp(),
				"limit":           limitProp(5000),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"project_key", "repository_slug"},
		},
	},
	// =========================================================================
	// Code Search
	// =========================================================================
	{
		Name: "bitbucket_code_search",
		Description: `Search code across all Bitbucket repositories using the search API. Uses Bitbucket's built-in code search (powered by Elasticsearch). Returns matching files with surrounding code context and line numbers. Requires the Bitbucket Search feature to be enabled on the Data Center instance.

The query supports Lucene-style field filters and boolean operators:
- File filters: ext:java, lang:python, path:src/main
- Repository filters: repo:my-repo, project:PROJECT_KEY
- Boolean operators: AND, OR, NOT (uppercase), use () for grouping
- Examples: 'CompanyInfoUpdater', 'function ext:java', 'config AND (yaml OR yml)', 'className NOT test project:MYPROJ'`,
		Annotations: modules.ReadOnly("Code Search"),
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"query":           {Type: "string", Description: "Lucene-style search query (see tool description for the filter grammar)"},
				"start":           {Type: "number", Description: "Starting index for pagination (use nextStart from previous results)", Minimum: modules.Float(0)},
				"limit":           limitProp(100),
				responseFormatKey: responseFormatProp(),
			},
			Required: []string{"query"},
		},
	},
}
