package bitbucket

import (
	"context"
	"net/url"
)

// codeSearch posts to the dedicated search service. Pagination for code
// results lives under the nested "code" sub-object rather than at the top
// level of the response.
func (m *BitbucketModule) codeSearch(ctx context.Context, params map[string]any) (string, error) {
	query := strParam(params, "query")
	payload := map[string]any{
		"query": query,
		"entities": map[string]any{
			"code": map[string]any{
				"start": intParam(params, "start", 0),
				"limit": intParam(params, "limit", 25),
			},
		},
	}

	data, err := m.client.Post(ctx, "/rest/search/latest/search", payload, url.Values{"avatarSize": {"64"}})
	if err != nil {
		return "", err
	}

	codeSection := object(data, "code")
	total := int(intField(codeSection, "count"))
	markdown := formatSearchResults(objects(array(codeSection, "values")), query,
		total, boolOr(codeSection, "isLastPage", true))
	return renderResponse(responseFormat(params), markdown, codeSection)
}
