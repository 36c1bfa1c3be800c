package bitbucket

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Markdown renderers — pure transformation: decoded JSON → string.
// Total on missing fields: absent optionals default, they never fail.
// =============================================================================

// -----------------------------------------------------------------------------
// Generic field accessors for decoded JSON objects
// -----------------------------------------------------------------------------

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func strOr(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

func num(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func boolOr(m map[string]any, key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

func object(m map[string]any, key string) map[string]any {
	o, _ := m[key].(map[string]any)
	if o == nil {
		return map[string]any{}
	}
	return o
}

func array(m map[string]any, key string) []any {
	a, _ := m[key].([]any)
	return a
}

// objects narrows a JSON array to its object elements.
func objects(a []any) []map[string]any {
	out := make([]map[string]any, 0, len(a))
	for _, v := range a {
		if o, ok := v.(map[string]any); ok {
			out = append(out, o)
		}
	}
	return out
}

// pageMeta extracts the uniform pagination envelope fields.
// size defaults to the value count, isLastPage defaults to true.
func pageMeta(data map[string]any) (values []map[string]any, total int, isLast bool) {
	values = objects(array(data, "values"))
	total = len(values)
	if n, ok := num(data, "size"); ok {
		total = int(n)
	}
	isLast = boolOr(data, "isLastPage", true)
	return values, total, isLast
}

// -----------------------------------------------------------------------------
// Scalar formatting
// -----------------------------------------------------------------------------

// formatEpoch renders an epoch-millisecond timestamp as a UTC date string.
// Missing timestamps render as "unknown".
func formatEpoch(v any) string {
	var ms int64
	switch n := v.(type) {
	case float64:
		ms = int64(n)
	case int:
		ms = int64(n)
	case int64:
		ms = n
	default:
		return "unknown"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04") + " UTC"
}

// shortHash truncates a commit hash to 12 characters.
func shortHash(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// firstLine returns the text up to the first newline.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// formatSize renders a byte count as N B / N.N KB / N.N MB.
func formatSize(size float64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", int64(size))
	}
	if size < 1024*1024 {
		return fmt.Sprintf("%.1f KB", size/1024)
	}
	return fmt.Sprintf("%.1f MB", size/(1024*1024))
}

// userName resolves a user object to displayName, falling back to name,
// falling back to "unknown".
func userName(user map[string]any) string {
	if s := str(user, "displayName"); s != "" {
		return s
	}
	return strOr(user, "name", "unknown")
}

// paginationHint returns the trailing "more available" line for a listing,
// or "" when the page is the last one.
func paginationHint(kind string, isLast bool) string {
	if isLast {
		return ""
	}
	return fmt.Sprintf("\n*More %s available — increase `start` to paginate.*", kind)
}

// -----------------------------------------------------------------------------
// Projects & Repositories
// -----------------------------------------------------------------------------

func formatProject(p map[string]any) string {
	visibility := "Private"
	if boolOr(p, "public", false) {
		visibility = "Public"
	}
	line := fmt.Sprintf("- **%s** (`%s`) — %s", str(p, "name"), str(p, "key"), visibility)
	if desc := str(p, "description"); desc != "" {
		line += " — " + desc
	}
	return line
}

func formatProjects(projects []map[string]any, total int, isLast bool) string {
	lines := []string{fmt.Sprintf("# Projects (%d total)\n", total)}
	for _, p := range projects {
		lines = append(lines, formatProject(p))
	}
	if hint := paginationHint("projects", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

func formatRepository(r map[string]any) string {
	archived := ""
	if boolOr(r, "archived", false) {
		archived = " [ARCHIVED]"
	}
	line := fmt.Sprintf("- **%s** (`%s`) in `%s` — %s%s",
		str(r, "name"), str(r, "slug"), str(object(r, "project"), "key"), str(r, "state"), archived)
	if desc := str(r, "description"); desc != "" {
		line += " — " + desc
	}
	return line
}

func formatRepositories(repos []map[string]any, total int, isLast bool) string {
	lines := []string{fmt.Sprintf("# Repositories (%d total)\n", total)}
	for _, r := range repos {
		lines = append(lines, formatRepository(r))
	}
	if hint := paginationHint("repositories", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

func formatRepositoryDetail(r map[string]any) string {
	project := object(r, "project")

	cloneSection := ""
	if cloneURLs := objects(array(object(r, "links"), "clone")); len(cloneURLs) > 0 {
		var entries []string
		for _, c := range cloneURLs {
			entries = append(entries, fmt.Sprintf("  - %s: `%s`", str(c, "name"), str(c, "href")))
		}
		cloneSection = "\n**Clone URLs:**\n" + strings.Join(entries, "\n")
	}

	return fmt.Sprintf("# %s\n\n"+
		"- **Slug:** `%s`\n"+
		"- **Project:** %s (`%s`)\n"+
		"- **State:** %s\n"+
		"- **SCM:** %s\n"+
		"- **Forkable:** %t\n"+
		"- **Public:** %t\n"+
		"- **Archived:** %t\n"+
		"- **Description:** %s%s",
		str(r, "name"),
		str(r, "slug"),
		str(project, "name"), str(project, "key"),
		str(r, "state"),
		strOr(r, "scmId", "git"),
		boolOr(r, "forkable", true),
		boolOr(r, "public", false),
		boolOr(r, "archived", false),
		strOr(r, "description", "N/A"),
		cloneSection,
	)
}

// -----------------------------------------------------------------------------
// Branches & Tags
// -----------------------------------------------------------------------------

func formatBranches(branches []map[string]any, total int, isLast bool) string {
	lines := []string{fmt.Sprintf("# Branches (%d total)\n", total)}
	for _, b := range branches {
		def := ""
		if boolOr(b, "isDefault", false) {
			def = " ⭐ **default**"
		}
		lines = append(lines, fmt.Sprintf("- `%s` — latest commit: `%s`%s",
			str(b, "displayId"), shortHash(str(b, "latestCommit")), def))
	}
	if hint := paginationHint("branches", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

func formatTags(tags []map[string]any, total int, isLast bool) string {
	lines := []string{fmt.Sprintf("# Tags (%d total)\n", total)}
	for _, t := range tags {
		lines = append(lines, fmt.Sprintf("- `%s` — commit: `%s`",
			str(t, "displayId"), shortHash(str(t, "latestCommit"))))
	}
	if hint := paginationHint("tags", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

// -----------------------------------------------------------------------------
// Commits
// -----------------------------------------------------------------------------

func formatCommit(c map[string]any) string {
	hash := str(c, "displayId")
	if hash == "" {
		hash = str(c, "id")
	}
	return fmt.Sprintf("- `%s` %s **%s** — %s",
		shortHash(hash),
		formatEpoch(c["authorTimestamp"]),
		strOr(object(c, "author"), "name", "unknown"),
		firstLine(str(c, "message")))
}

func formatCommits(commits []map[string]any, total int, isLast bool) string {
	lines := []string{fmt.Sprintf("# Commits (%d total)\n", total)}
	for _, c := range commits {
		lines = append(lines, formatCommit(c))
	}
	if hint := paginationHint("commits", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

func formatCommitDetail(c map[string]any) string {
	hash := str(c, "displayId")
	if hash == "" {
		hash = shortHash(str(c, "id"))
	}
	author := object(c, "author")

	var parents []string
	for _, p := range objects(array(c, "parents")) {
		parents = append(parents, fmt.Sprintf("`%s`", shortHash(strOr(p, "displayId", str(p, "id")))))
	}
	parentLine := "none"
	if len(parents) > 0 {
		parentLine = strings.Join(parents, ", ")
	}

	authorLine := strOr(author, "name", "unknown")
	if email := str(author, "emailAddress"); email != "" {
		authorLine += " <" + email + ">"
	}

	return fmt.Sprintf("# Commit `%s`\n\n"+
		"- **ID:** `%s`\n"+
		"- **Author:** %s\n"+
		"- **Date:** %s\n"+
		"- **Parents:** %s\n\n"+
		"## Message\n\n%s",
		hash,
		str(c, "id"),
		authorLine,
		formatEpoch(c["authorTimestamp"]),
		parentLine,
		strOr(c, "message", "No message."),
	)
}

// -----------------------------------------------------------------------------
// Pull Requests
// -----------------------------------------------------------------------------

func formatPRSummary(pr map[string]any) string {
	author := object(object(pr, "author"), "user")
	return fmt.Sprintf("- **#%s** [%s] %s (`%s` → `%s`) by %s — %s",
		idString(pr),
		str(pr, "state"),
		str(pr, "title"),
		strOr(object(pr, "fromRef"), "displayId", "?"),
		strOr(object(pr, "toRef"), "displayId", "?"),
		userName(author),
		formatEpoch(pr["updatedDate"]))
}

// idString renders a numeric id field without a decimal point.
func idString(m map[string]any) string {
	if n, ok := num(m, "id"); ok {
		return fmt.Sprintf("%d", int64(n))
	}
	return str(m, "id")
}

func formatPullRequests(prs []map[string]any, total int, isLast bool) string {
	lines := []string{fmt.Sprintf("# Pull Requests (%d total)\n", total)}
	for _, pr := range prs {
		lines = append(lines, formatPRSummary(pr))
	}
	if hint := paginationHint("pull requests", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

func formatPullRequestDetail(pr map[string]any) string {
	author := object(object(pr, "author"), "user")
	reviewers := objects(array(pr, "reviewers"))

	var reviewerLines []string
	for _, r := range reviewers {
		user := object(r, "user")
		status := fmt.Sprintf("(%s)", strOr(r, "status", "UNAPPROVED"))
		if boolOr(r, "approved", false) {
			status = "✅ Approved"
		}
		reviewerLines = append(reviewerLines, fmt.Sprintf("  - %s %s",
			strOr(user, "displayName", str(user, "name")), status))
	}
	reviewerSection := "No reviewers assigned."
	if len(reviewerLines) > 0 {
		reviewerSection = strings.Join(reviewerLines, "\n")
	}

	return fmt.Sprintf("# PR #%s — %s\n\n"+
		"- **State:** %s\n"+
		"- **Author:** %s\n"+
		"- **Branch:** `%s` → `%s`\n"+
		"- **Created:** %s\n"+
		"- **Updated:** %s\n"+
		"- **Locked:** %t\n\n"+
		"## Description\n\n%s\n\n"+
		"## Reviewers (%d)\n\n%s",
		idString(pr),
		str(pr, "title"),
		str(pr, "state"),
		userName(author),
		strOr(object(pr, "fromRef"), "displayId", "?"),
		strOr(object(pr, "toRef"), "displayId", "?"),
		formatEpoch(pr["createdDate"]),
		formatEpoch(pr["updatedDate"]),
		boolOr(pr, "locked", false),
		strOr(pr, "description", "No description."),
		len(reviewers),
		reviewerSection,
	)
}

func formatPRChanges(changes []map[string]any, total int, isLast bool) string {
	lines := []string{fmt.Sprintf("# PR Changes (%d files)\n", total)}
	for _, c := range changes {
		pathInfo := object(c, "path")
		filePath := strOr(pathInfo, "toString", strOr(pathInfo, "name", "?"))
		rename := ""
		if src := str(object(c, "srcPath"), "toString"); src != "" {
			rename = fmt.Sprintf(" (was `%s`)", src)
		}
		lines = append(lines, fmt.Sprintf("- **%s** `%s`%s [%s]",
			strOr(c, "type", "?"), filePath, rename, str(c, "nodeType")))
	}
	if hint := paginationHint("changes", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

// commentTextLimit caps comment bodies in activity listings.
const commentTextLimit = 200

func formatPRActivities(activities []map[string]any, total int, isLast bool) string {
	lines := []string{fmt.Sprintf("# PR Activity (%d items)\n", total)}
	for _, a := range activities {
		action := str(a, "action")
		name := userName(object(a, "user"))
		ts := formatEpoch(a["createdDate"])

		comment, hasComment := a["comment"].(map[string]any)
		if hasComment {
			text := str(comment, "text")
			if len(text) > commentTextLimit {
				text = text[:commentTextLimit]
			}
			location := ""
			if anchor, ok := comment["anchor"].(map[string]any); ok {
				if path := str(anchor, "path"); path != "" {
					location = fmt.Sprintf(" on `%s`", path)
					if line, ok := num(anchor, "line"); ok && line != 0 {
						location += fmt.Sprintf(" line %d", int64(line))
					}
				}
			}
			lines = append(lines, fmt.Sprintf("### %s by %s — %s%s\n\n%s\n", action, name, ts, location, text))
		} else {
			lines = append(lines, fmt.Sprintf("- **%s** by %s — %s", action, name, ts))
		}
	}
	if hint := paginationHint("activities", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

func formatRequiredReviewers(conditions []map[string]any) string {
	lines := []string{"# Required Reviewers\n"}
	for _, cond := range conditions {
		for _, r := range objects(array(cond, "reviewers")) {
			lines = append(lines, fmt.Sprintf("- **%s** (`%s`)",
				strOr(r, "displayName", strOr(r, "name", "unknown")), str(r, "name")))
		}
		if approvals, ok := num(cond, "requiredApprovals"); ok && approvals > 0 {
			lines = append(lines, fmt.Sprintf("\n*Required approvals: %d*", int64(approvals)))
		}
	}
	if len(lines) == 1 {
		lines = append(lines, "No required reviewers configured for this branch combination.")
	}
	return strings.Join(lines, "\n")
}

// -----------------------------------------------------------------------------
// File Browsing
// -----------------------------------------------------------------------------

// formatBrowse renders the browse response union: a directory listing when
// children are present, file content when lines are present, and a fixed
// message otherwise.
func formatBrowse(data map[string]any, path string) string {
	if children, ok := data["children"].(map[string]any); ok && len(children) > 0 {
		values, total, isLast := pageMeta(children)
		displayPath := path
		if displayPath == "" {
			displayPath = "/"
		}
		lines := []string{fmt.Sprintf("# Browse: `%s` (%d entries)\n", displayPath, total)}
		for _, entry := range values {
			entryPath := object(entry, "path")
			name := strOr(entryPath, "toString", strOr(entryPath, "name", "?"))
			if str(entry, "type") == "DIRECTORY" {
				lines = append(lines, fmt.Sprintf("- 📁 `%s/`", name))
			} else {
				sizeSuffix := ""
				if size, ok := num(entry, "size"); ok {
					sizeSuffix = fmt.Sprintf(" (%s)", formatSize(size))
				}
				lines = append(lines, fmt.Sprintf("- 📄 `%s`%s", name, sizeSuffix))
			}
		}
		if hint := paginationHint("entries", isLast); hint != "" {
			lines = append(lines, hint)
		}
		return strings.Join(lines, "\n")
	}

	if fileLines := objects(array(data, "lines")); len(fileLines) > 0 {
		content := []string{fmt.Sprintf("# File: `%s`\n\n```", path)}
		for _, lineObj := range fileLines {
			content = append(content, str(lineObj, "text"))
		}
		content = append(content, "```")
		return strings.Join(content, "\n")
	}

	return fmt.Sprintf("# Browse: `%s`\n\nEmpty or binary file.", path)
}

func formatFileList(files []any, path string, total int, isLast bool) string {
	displayPath := path
	if displayPath == "" {
		displayPath = "/"
	}
	lines := []string{fmt.Sprintf("# Files in `%s` (%d total)\n", displayPath, total)}
	for _, f := range files {
		if s, ok := f.(string); ok {
			lines = append(lines, fmt.Sprintf("- `%s`", s))
		}
	}
	if hint := paginationHint("files", isLast); hint != "" {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

// -----------------------------------------------------------------------------
// Code Search
// -----------------------------------------------------------------------------

func formatSearchResults(results []map[string]any, query string, total int, isLast bool) string {
	more := ""
	if !isLast {
		more = " | **More pages available**"
	}
	header := fmt.Sprintf("# Search Results for %q\n\n**Total Results:** %d | **Showing:** %d results%s\n\n---\n",
		query, total, len(results), more)

	var sections []string
	for i, result := range results {
		repo := object(result, "repository")
		section := fmt.Sprintf("## %d. %s\n**Project:** %s | **Repository:** %s | **Matches:** %d\n\n",
			i+1,
			strOr(result, "file", "?"),
			str(object(repo, "project"), "key"),
			str(repo, "name"),
			intField(result, "hitCount"))

		blocks := extractContextBlocks(array(result, "hitContexts"))
		for j, block := range blocks {
			if j > 0 {
				section += "---\n\n"
			}
			section += "```\n"
			for _, ctx := range block {
				line, _ := num(ctx, "line")
				section += fmt.Sprintf("%4d    %s\n", int64(line), cleanHTML(str(ctx, "text")))
			}
			section += "```\n\n"
		}

		sections = append(sections, section)
	}

	return header + strings.Join(sections, "\n---\n\n") + "\n---\n\n*Search completed*"
}

func intField(m map[string]any, key string) int64 {
	n, _ := num(m, key)
	return int64(n)
}

// extractContextBlocks flattens the nested hit-context groups, sorts them by
// line number, and groups lines into blocks where consecutive matched line
// numbers differ by at most 3.
func extractContextBlocks(hitContexts []any) [][]map[string]any {
	var all []map[string]any
	for _, group := range hitContexts {
		if g, ok := group.([]any); ok {
			all = append(all, objects(g)...)
		}
	}
	if len(all) == 0 {
		return nil
	}

	sort.SliceStable(all, func(i, j int) bool {
		return intField(all[i], "line") < intField(all[j], "line")
	})

	var blocks [][]map[string]any
	current := []map[string]any{all[0]}
	for _, ctx := range all[1:] {
		if intField(ctx, "line")-intField(current[len(current)-1], "line") <= 3 {
			current = append(current, ctx)
		} else {
			blocks = append(blocks, current)
			current = []map[string]any{ctx}
		}
	}
	return append(blocks, current)
}

// cleanHTML strips highlight tags and decodes HTML entities emitted by the
// search engine.
var htmlCleaner = strings.NewReplacer(
	"<em>", "",
	"</em>", "",
	"&quot;", `"`,
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
)

func cleanHTML(text string) string {
	return htmlCleaner.Replace(text)
}
