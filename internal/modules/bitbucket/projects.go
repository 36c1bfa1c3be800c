package bitbucket

import (
	"context"
	"net/url"

	"bbmcp/server/pkg/bitbucketapi"
)

func (m *BitbucketModule) getProjects(ctx context.Context, params map[string]any) (string, error) {
	query := url.Values{}
	if name := strParam(params, "name"); name != "" {
		query.Set("name", name)
	}
	if permission := strParam(params, "permission"); permission != "" {
		query.Set("permission", permission)
	}

	data, err := m.client.GetPaged(ctx, "/rest/api/latest/projects", query,
		intParam(params, "start", 0), intParam(params, "limit", 25))
	if err != nil {
		return "", err
	}

	values, total, isLast := pageMeta(data)
	return renderResponse(responseFormat(params), formatProjects(values, total, isLast), data)
}

func (m *BitbucketModule) getProject(ctx context.Context, params map[string]any) (string, error) {
	data, err := m.client.Get(ctx, "/rest/api/latest/projects/"+strParam(params, "project_key"), nil)
	if err != nil {
		return "", err
	}
	return renderResponse(responseFormat(params), formatProject(data), data)
}

func (m *BitbucketModule) getRepositories(ctx context.Context, params map[string]any) (string, error) {
	path := "/rest/api/latest/projects/" + strParam(params, "project_key") + "/repos"
	data, err := m.client.GetPaged(ctx, path, nil,
		intParam(params, "start", 0), intParam(params, "limit", 25))
	if err != nil {
		return "", err
	}

	values, total, isLast := pageMeta(data)
	return renderResponse(responseFormat(params), formatRepositories(values, total, isLast), data)
}

func (m *BitbucketModule) getRepository(ctx context.Context, params map[string]any) (string, error) {
	path := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug"))
	data, err := m.client.Get(ctx, path, nil)
	if err != nil {
		return "", err
	}
	return renderResponse(responseFormat(params), formatRepositoryDetail(data), data)
}
