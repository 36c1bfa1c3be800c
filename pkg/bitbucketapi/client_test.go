package bitbucketapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(Config{BaseURL: srv.URL, APIToken: "token"})
	return c, srv
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		check       func(err error) bool
	}{
		{
			"401 authentication",
			401,
			`{"errors":[{"message":"bad token"}]}`,
			"Authentication failed",
			func(err error) bool {
				var authErr *AuthenticationError
				return errors.As(err, &authErr)
			},
		},
		{
			"403 permission",
			403,
			`{"message":"forbidden"}`,
			"Permission denied: forbidden",
			func(err error) bool {
				var permErr *PermissionError
				return errors.As(err, &permErr)
			},
		},
		{
			"404 not found",
			404,
			`{"message":"repo not found"}`,
			"Not found: repo not found",
			func(err error) bool {
				var nfErr *NotFoundError
				return errors.As(err, &nfErr)
			},
		},
		{
			"500 joins error messages",
			500,
			`{"errors":[{"message":"server exploded"},{"message":"twice"}]}`,
			"server exploded; twice",
			func(err error) bool {
				var apiErr *APIError
				return errors.As(err, &apiErr) && apiErr.StatusCode == 500
			},
		},
		{
			"unparseable body degrades to raw text",
			502,
			"<html>bad gateway</html>",
			"<html>bad gateway</html>",
			func(err error) bool {
				var apiErr *APIError
				return errors.As(err, &apiErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := c.Get(context.Background(), "/rest/api/latest/test", nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.check(err) {
				t.Errorf("error %T not classified as expected", err)
			}
			if !strings.Contains(err.Error(), tt.wantMessage) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMessage)
			}
		})
	}
}

func TestRawTextErrorTruncatedTo500(t *testing.T) {
	long := strings.Repeat("x", 800)
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte(long))
	}))
	defer srv.Close()

	_, err := c.Get(context.Background(), "/rest/api/latest/test", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if len(apiErr.Message) != 500 {
		t.Errorf("message length = %d, want 500", len(apiErr.Message))
	}
}

func TestEmptyBodyAnd204(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"204 no content", 204, ""},
		{"200 empty body", 200, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			data, err := c.Get(context.Background(), "/rest/api/latest/test", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(data) != 0 {
				t.Errorf("expected empty map, got %v", data)
			}
		})
	}
}

func TestGetPagedMergesParams(t *testing.T) {
	var captured url.Values
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	params := url.Values{}
	params.Set("filterText", "api")
	data, err := c.GetPaged(context.Background(), "/rest/api/latest/projects/PROJ/repos", params, 50, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["ok"] != true {
		t.Errorf("unexpected body: %v", data)
	}
	if captured.Get("filterText") != "api" {
		t.Errorf("filterText = %q, want %q", captured.Get("filterText"), "api")
	}
	if captured.Get("start") != "50" || captured.Get("limit") != "10" {
		t.Errorf("pagination params = start=%s limit=%s, want start=50 limit=10",
			captured.Get("start"), captured.Get("limit"))
	}
	// The original params map must not be mutated.
	if params.Get("start") != "" {
		t.Error("GetPaged mutated caller params")
	}
}

func TestBareArrayResponseWrappedAsValues(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer srv.Close()

	data, err := c.Get(context.Background(), "/rest/api/latest/conditions", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values, ok := data["values"].([]any)
	if !ok {
		t.Fatalf("expected values array, got %v", data)
	}
	if len(values) != 2 {
		t.Errorf("len(values) = %d, want 2", len(values))
	}
}

func TestGetRawReturnsText(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("line one\nline two\n"))
	}))
	defer srv.Close()

	text, err := c.GetRaw(context.Background(), "/rest/api/latest/raw/README.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "line one\nline two\n" {
		t.Errorf("unexpected raw text: %q", text)
	}
}

func TestGetRawClassifiesErrors(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`{"errors":[{"message":"no such file"}]}`))
	}))
	defer srv.Close()

	_, err := c.GetRaw(context.Background(), "/rest/api/latest/raw/missing.txt", nil)
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
}

func TestAuthorizationHeaderSent(t *testing.T) {
	var gotAuth string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := c.Get(context.Background(), "/rest/api/latest/projects", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer token")
	}
}

func TestRepoPath(t *testing.T) {
	got := RepoPath("PROJ", "my-repo")
	want := "/rest/api/latest/projects/PROJ/repos/my-repo"
	if got != want {
		t.Errorf("RepoPath() = %q, want %q", got, want)
	}
}
