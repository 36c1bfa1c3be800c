package bitbucket

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"bbmcp/server/pkg/bitbucketapi"
)

func (m *BitbucketModule) browse(ctx context.Context, params map[string]any) (string, error) {
	endpoint := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/browse"
	path := strParam(params, "path")
	if path != "" {
		endpoint += "/" + path
	}

	query := url.Values{}
	if at := strParam(params, "at"); at != "" {
		query.Set("at", at)
	}

	data, err := m.client.GetPaged(ctx, endpoint, query,
		intParam(params, "start", 0), intParam(params, "limit", 500))
	if err != nil {
		return "", err
	}
	return renderResponse(responseFormat(params), formatBrowse(data, path), data)
}

func (m *BitbucketModule) getFileContent(ctx context.Context, params map[string]any) (string, error) {
	path := strParam(params, "path")
	at := strParam(params, "at")

	query := url.Values{}
	if at != "" {
		query.Set("at", at)
	}

	endpoint := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/raw/" + path
	content, err := m.client.GetRaw(ctx, endpoint, query)
	if err != nil {
		return "", err
	}

	// File extension drives the fence's syntax highlighting tag
	ext := ""
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		ext = path[i+1:]
	}
	markdown := fmt.Sprintf("# File: `%s`\n\n```%s\n%s\n```", path, ext, content)
	data := map[string]any{"path": path, "at": at, "content": content}
	return renderResponse(responseFormat(params), markdown, data)
}

func (m *BitbucketModule) listFiles(ctx context.Context, params map[string]any) (string, error) {
	endpoint := bitbucketapi.RepoPath(strParam(params, "project_key"), strParam(params, "repository_slug")) + "/files"
	path := strParam(params, "path")
	if path != "" {
		endpoint += "/" + path
	}

	query := url.Values{}
	if at := strParam(params, "at"); at != "" {
		query.Set("at", at)
	}

	data, err := m.client.GetPaged(ctx, endpoint, query,
		intParam(params, "start", 0), intParam(params, "limit", 500))
	if err != nil {
		return "", err
	}

	files := array(data, "values")
	total := len(files)
	if n, ok := num(data, "size"); ok {
		total = int(n)
	}
	markdown := formatFileList(files, path, total, boolOr(data, "isLastPage", true))
	return renderResponse(responseFormat(params), markdown, data)
}
