package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type contentItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	SHA         string `json:"sha"`
	Size        int    `json:"size"`
	DownloadURL string `json:"download_url,omitempty"`
}

// newTestServer fakes the contents API for repository me/chats.
func newTestServer(t *testing.T) (*httptest.Server, *http.Header) {
	t.Helper()

	var lastHeader http.Header
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastHeader = r.Header.Clone()

		writeJSON := func(v any) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
		}

		switch r.URL.Path {
		case "/repos/me/chats/contents/", "/repos/me/chats/contents":
			writeJSON([]contentItem{
				{Name: "Aqua", Path: "Aqua", Type: "dir", SHA: "d1"},
				{Name: "README.md", Path: "README.md", Type: "file", SHA: "f0",
					DownloadURL: srv.URL + "/raw/README.md"},
			})
		case "/repos/me/chats/contents/Aqua":
			if r.URL.Query().Get("ref") != "main" {
				http.Error(w, `{"message":"wrong ref"}`, http.StatusBadRequest)
				return
			}
			writeJSON([]contentItem{
				{Name: "a.jsonl", Path: "Aqua/a.jsonl", Type: "file", SHA: "s1", Size: 12,
					DownloadURL: srv.URL + "/raw/Aqua/a.jsonl"},
			})
		case "/repos/me/chats/contents/README.md":
			writeJSON(contentItem{Name: "README.md", Path: "README.md", Type: "file", SHA: "f0"})
		case "/repos/me/chats/contents/limited":
			w.Header().Set("X-RateLimit-Limit", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", "4102444800")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
		case "/raw/Aqua/a.jsonl":
			_, _ = w.Write([]byte(`{"mes":"hi"}` + "\n"))
		case "/raw/big.jsonl":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, &lastHeader
}

func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()

	c, err := New(Options{
		Owner:      "me",
		Repo:       "chats",
		Branch:     "main",
		Token:      token,
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := New(Options{Repo: "chats"})
	require.Error(t, err)

	_, err = New(Options{Owner: "me"})
	require.Error(t, err)

	c, err := New(Options{Owner: "me", Repo: "chats"})
	require.NoError(t, err)
	require.Equal(t, "me/chats", c.Repository())
}

func TestListDir_Root(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv, "")

	entries, err := c.ListDir(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, "Aqua", entries[0].Name)
	require.True(t, entries[0].IsDir())
	require.False(t, entries[1].IsDir())
	require.Equal(t, "f0", entries[1].SHA)
}

func TestListDir_FolderUsesBranch(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv, "")

	entries, err := c.ListDir(context.Background(), "Aqua")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, Entry{
		Name:        "a.jsonl",
		Path:        "Aqua/a.jsonl",
		Type:        TypeFile,
		SHA:         "s1",
		Size:        12,
		DownloadURL: srv.URL + "/raw/Aqua/a.jsonl",
	}, entries[0])
}

func TestListDir_FilePathIsError(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv, "")

	_, err := c.ListDir(context.Background(), "README.md")
	require.Error(t, err)
	require.Contains(t, err.Error(), "path is a file")
}

func TestListDir_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv, "")

	_, err := c.ListDir(context.Background(), "missing")
	require.Error(t, err)

	_, err = c.ListDir(context.Background(), "limited")
	require.Error(t, err)
}

func TestAuthorizationHeader(t *testing.T) {
	srv, hdr := newTestServer(t)

	anon := newTestClient(t, srv, "")
	_, err := anon.ListDir(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, hdr.Get("Authorization"))

	authed := newTestClient(t, srv, "secret")
	_, err = authed.ListDir(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", hdr.Get("Authorization"))
}

func TestDownload(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv, "")

	data, err := c.Download(context.Background(), Entry{
		Path:        "Aqua/a.jsonl",
		DownloadURL: srv.URL + "/raw/Aqua/a.jsonl",
	})
	require.NoError(t, err)
	require.Equal(t, `{"mes":"hi"}`+"\n", string(data))
}

func TestDownload_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	c, err := New(Options{
		Owner:       "me",
		Repo:        "chats",
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
		MaxFileSize: 16,
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		entry Entry
	}{
		{"no url", Entry{Path: "x.jsonl"}},
		{"not found", Entry{Path: "gone.jsonl", DownloadURL: srv.URL + "/raw/gone.jsonl"}},
		{"too large", Entry{Path: "big.jsonl", DownloadURL: srv.URL + "/raw/big.jsonl"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Download(context.Background(), tt.entry)
			require.Error(t, err)
		})
	}
}
