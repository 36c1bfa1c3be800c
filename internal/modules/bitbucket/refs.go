package bitbucket

import (
	"context"
	"net/url"

	"bbmcp/server/pkg/bitbucketapi"
)

func (m *BitbucketModule) getBranches(ctx context.Context, params map[string]any) (string, error) {
	// details=true makes the remote include latestCommit and isDefault
	query := url.Values{"details": {"true"}}
	if filter := strParam(params, "filter_text"); filter != "" {
		query.Set("filterText", filter)
	}
	if orderBy := strParam(params, "order_by"); orderBy != "" {
		query.Set("orderBy", orderBy)
	}

	path := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/branches"
	data, err := m.client.GetPaged(ctx, path, query,
		intParam(params, "start", 0), intParam(params, "limit", 25))
	if err != nil {
		return "", err
	}

	values, total, isLast := pageMeta(data)
	return renderResponse(responseFormat(params), formatBranches(values, total, isLast), data)
}

func (m *BitbucketModule) getTags(ctx context.Context, params map[string]any) (string, error) {
	query := url.Values{}
	if filter := strParam(params, "filter_text"); filter != "" {
		query.Set("filterText", filter)
	}
	if orderBy := strParam(params, "order_by"); orderBy != "" {
		query.Set("orderBy", orderBy)
	}

	path := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/tags"
	data, err := m.client.GetPaged(ctx, path, query,
		intParam(params, "start", 0), intParam(params, "limit", 25))
	if err != nil {
		return "", err
	}

	values, total, isLast := pageMeta(data)
	return renderResponse(responseFormat(params), formatTags(values, total, isLast), data)
}
