package bitbucket

import (
	"context"
	"net/url"

	"bbmcp/server/pkg/bitbucketapi"
)

func (m *BitbucketModule) getCommits(ctx context.Context, params map[string]any) (string, error) {
	query := url.Values{}
	if path := strParam(params, "path"); path != "" {
		query.Set("path", path)
	}
	if since := strParam(params, "since"); since != "" {
		query.Set("since", since)
	}
	if until := strParam(params, "until"); until != "" {
		query.Set("until", until)
	}

	path := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/commits"
	data, err := m.client.GetPaged(ctx, path, query,
		intParam(params, "start", 0), intParam(params, "limit", 25))
	if err != nil {
		return "", err
	}

	values, total, isLast := pageMeta(data)
	return renderResponse(responseFormat(params), formatCommits(values, total, isLast), data)
}

func (m *BitbucketModule) getCommit(ctx context.Context, params map[string]any) (string, error) {
	path := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) +
		"/commits/" + strParam(params, "commit_id")
	data, err := m.client.Get(ctx, path, nil)
	if err != nil {
		return "", err
	}
	return renderResponse(responseFormat(params), formatCommitDetail(data), data)
}
