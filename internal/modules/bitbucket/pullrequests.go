package bitbucket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"bbmcp/server/pkg/bitbucketapi"
)

// prPath builds the REST path for a specific pull request.
func prPath(params map[string]any) string {
	return bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) +
		"/pull-requests/" + strconv.Itoa(intParam(params, "pull_request_id", 0))
}

// wrapReviewers converts plain usernames into the participant shape the
// write endpoints expect.
func wrapReviewers(names []string) []map[string]any {
	wrapped := make([]map[string]any, 0, len(names))
	for _, name := range names {
		wrapped = append(wrapped, map[string]any{"user": map[string]any{"name": name}})
	}
	return wrapped
}

func (m *BitbucketModule) getPullRequests(ctx context.Context, params map[string]any) (string, error) {
	query := url.Values{}
	if state := strParam(params, "state"); state != "" {
		query.Set("state", state)
	}
	if direction := strParam(params, "direction"); direction != "" {
		query.Set("direction", direction)
	}
	if order := strParam(params, "order"); order != "" {
		query.Set("order", order)
	}
	if filter := strParam(params, "filter_text"); filter != "" {
		query.Set("filterText", filter)
	}

	path := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/pull-requests"
	data, err := m.client.GetPaged(ctx, path, query,
		intParam(params, "start", 0), intParam(params, "limit", 25))
	if err != nil {
		return "", err
	}

	values, total, isLast := pageMeta(data)
	return renderResponse(responseFormat(params), formatPullRequests(values, total, isLast), data)
}

func (m *BitbucketModule) getPullRequest(ctx context.Context, params map[string]any) (string, error) {
	data, err := m.client.Get(ctx, prPath(params), nil)
	if err != nil {
		return "", err
	}
	return renderResponse(responseFormat(params), formatPullRequestDetail(data), data)
}

func (m *BitbucketModule) getPullRequestComments(ctx context.Context, params map[string]any) (string, error) {
	data, err := m.client.GetPaged(ctx, prPath(params)+"/activities", nil,
		intParam(params, "start", 0), intParam(params, "limit", 25))
	if err != nil {
		return "", err
	}

	values, total, isLast := pageMeta(data)
	return renderResponse(responseFormat(params), formatPRActivities(values, total, isLast), data)
}

func (m *BitbucketModule) getPullRequestChanges(ctx context.Context, params map[string]any) (string, error) {
	query := url.Values{}
	if scope := strParam(params, "change_scope"); scope != "" {
		query.Set("changeScope", scope)
	}
	if withComments, ok := boolParam(params, "with_comments"); ok {
		query.Set("withComments", strconv.FormatBool(withComments))
	}

	data, err := m.client.GetPaged(ctx, prPath(params)+"/changes", query,
		intParam(params, "start", 0), intParam(params, "limit", 25))
	if err != nil {
		return "", err
	}

	values, total, isLast := pageMeta(data)
	return renderResponse(responseFormat(params), formatPRChanges(values, total, isLast), data)
}

func (m *BitbucketModule) getPullRequestDiff(ctx context.Context, params map[string]any) (string, error) {
	query := url.Values{}
	if contextLines, ok := params["context_lines"].(float64); ok {
		query.Set("contextLines", strconv.Itoa(int(contextLines)))
	}
	if diffType := strParam(params, "diff_type"); diffType != "" {
		query.Set("diffType", diffType)
	}
	if whitespace := strParam(params, "whitespace"); whitespace != "" {
		query.Set("whitespace", whitespace)
	}

	path := strParam(params, "path")
	rawDiff, err := m.client.GetRaw(ctx, prPath(params)+"/diff/"+path, query)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("# Diff: `%s` (PR #%d)\n\n```diff\n%s\n```",
		path, intParam(params, "pull_request_id", 0), rawDiff), nil
}

func (m *BitbucketModule) postPullRequestComment(ctx context.Context, params map[string]any) (string, error) {
	body := map[string]any{"text": strParam(params, "text")}
	if parentID, ok := params["parent_id"].(float64); ok {
		body["parent"] = map[string]any{"id": int(parentID)}
	}
	if filePath := strParam(params, "file_path"); filePath != "" {
		anchor := map[string]any{"path": filePath, "fileType": "TO"}
		if line, ok := params["line"].(float64); ok {
			anchor["line"] = int(line)
		}
		if lineType := strParam(params, "line_type"); lineType != "" {
			anchor["lineType"] = lineType
		}
		body["anchor"] = anchor
	}

	data, err := m.client.Post(ctx, prPath(params)+"/comments", body, nil)
	if err != nil {
		return "", err
	}

	id := idString(data)
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("Comment posted successfully (ID: %s)", id), nil
}

func (m *BitbucketModule) createPullRequest(ctx context.Context, params map[string]any) (string, error) {
	body := map[string]any{
		"title":   strParam(params, "title"),
		"fromRef": map[string]any{"id": strParam(params, "from_ref")},
		"toRef":   map[string]any{"id": strParam(params, "to_ref")},
	}
	if description := strParam(params, "description"); description != "" {
		body["description"] = description
	}
	if reviewers := sliceParam(params, "reviewers"); len(reviewers) > 0 {
		body["reviewers"] = wrapReviewers(toStrings(reviewers))
	}

	path := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/pull-requests"
	data, err := m.client.Post(ctx, path, body, nil)
	if err != nil {
		return "", err
	}

	id := idString(data)
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("Pull request created successfully (ID: #%s)\n\n%s",
		id, formatPullRequestDetail(data)), nil
}

// updatePullRequest is a read-modify-write: the current PR is fetched first
// so fromRef/toRef and any fields the caller did not change are preserved in
// the PUT body. The caller-supplied version is the optimistic-lock token;
// a stale version surfaces as a conflict error from the remote.
func (m *BitbucketModule) updatePullRequest(ctx context.Context, params map[string]any) (string, error) {
	current, err := m.client.Get(ctx, prPath(params), nil)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"version": intParam(params, "version", 0),
		"title":   strOr(params, "title", str(current, "title")),
		"fromRef": object(current, "fromRef"),
		"toRef":   object(current, "toRef"),
	}
	if description, ok := params["description"].(string); ok {
		body["description"] = description
	}
	if reviewers, ok := params["reviewers"].([]any); ok {
		body["reviewers"] = wrapReviewers(toStrings(reviewers))
	} else if existing := array(current, "reviewers"); len(existing) > 0 {
		body["reviewers"] = existing
	}

	data, err := m.client.Put(ctx, prPath(params), body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Pull request updated successfully.\n\n%s", formatPullRequestDetail(data)), nil
}

func (m *BitbucketModule) getRequiredReviewers(ctx context.Context, params map[string]any) (string, error) {
	query := url.Values{
		"sourceRefId": {strParam(params, "source_ref")},
		"targetRefId": {strParam(params, "target_ref")},
	}
	path := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/conditions"
	data, err := m.client.Get(ctx, path, query)
	if err != nil {
		return "", err
	}

	// The conditions endpoint returns a bare array on some DC versions
	// (wrapped as values by the client) and a paged envelope on others.
	conditions := objects(array(data, "values"))
	if len(conditions) == 0 && len(data) > 0 {
		if _, hasValues := data["values"]; !hasValues {
			conditions = []map[string]any{data}
		}
	}
	return renderResponse(responseFormat(params), formatRequiredReviewers(conditions), data)
}
