package archiveclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/asset-proxy/internal/cache"
	"github.com/bigkaa/goartstore/asset-proxy/internal/cachekey"
	"github.com/bigkaa/goartstore/asset-proxy/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockArchive — минимальная имитация API архива.
type mockArchive struct {
	server        *httptest.Server
	tokenRequests atomic.Int32
	renderPolls   atomic.Int32
	// Сколько раз рендишен отвечает 202 перед 200
	pendingPolls int32
	// Результаты поиска по значению q
	results map[string][]map[string]any
	// Последнее тело PATCH
	lastPatch atomic.Value
	// Сколько раз описание архива отвечает 503 перед 200
	descriptorFailures atomic.Int32
	descriptorHits     atomic.Int32
	// Статус ответа сервиса рендишенов (0 — 202 с Location)
	renderStatus   atomic.Int32
	renderRequests atomic.Int32
	// Сколько раз превью отвечает 502 перед 200
	previewFailures atomic.Int32
}

func newMockArchive(t *testing.T) *mockArchive {
	t.Helper()
	m := &mockArchive{results: map[string][]map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/fotoweb/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		m.tokenRequests.Add(1)
		writeJSON(w, map[string]any{"access_token": "archive-token", "expires_in": 3600, "token_type": "bearer"})
	})
	mux.HandleFunc("/fotoweb/archives/5000/", func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/fotoweb/archives/5000/" {
			m.descriptorHits.Add(1)
			if m.descriptorFailures.Add(-1) >= 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, map[string]any{"name": "Main", "searchURL": "/fotoweb/archives/5000/{?q}"})
			return
		}
		// Поиск: /fotoweb/archives/5000/;o=+?q=...
		data := m.results[r.URL.Query().Get("q")]
		page := map[string]any{"data": data}
		if r.URL.Query().Get("p") == "" && len(data) > 0 && r.URL.Query().Get("q") == "paged" {
			page["paging"] = map[string]string{"next": "/fotoweb/archives/5000/;o=+?q=paged&p=2"}
		}
		writeJSON(w, map[string]any{"assets": page})
	})
	mux.HandleFunc("/fotoweb/archives/6000/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"name": "Not searchable"})
	})
	mux.HandleFunc("/fotoweb/me/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"services": map[string]string{"rendition_request": "/fotoweb/services/renditions"}})
	})
	mux.HandleFunc("/fotoweb/services/renditions", func(w http.ResponseWriter, r *http.Request) {
		m.renderRequests.Add(1)
		if status := m.renderStatus.Load(); status != 0 {
			w.WriteHeader(int(status))
			return
		}
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != renditionRequestType {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["href"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Location", "/fotoweb/render/1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/fotoweb/render/1", func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if m.renderPolls.Add(1) <= m.pendingPolls {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte("rendered-bytes"))
	})
	mux.HandleFunc("/fotoweb/previews/1", func(w http.ResponseWriter, r *http.Request) {
		if m.previewFailures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("Authorization") != "Bearer preview-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("preview-bytes"))
	})
	mux.HandleFunc("/fotoweb/archives/5000/asset-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.Header.Get("Content-Type") != assetUpdateType {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		m.lastPatch.Store(string(body))
		w.WriteHeader(http.StatusOK)
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockArchive) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer archive-token"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, m *mockArchive, tokens TokenStore) *Client {
	t.Helper()
	if tokens == nil {
		tokens = cache.NewResilient(cache.NewMemoryStore(16, 0), 1, 0, testLogger())
	}
	c, err := New(Options{
		Host:         m.server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
		PollAttempts: 5,
		PollDelay:    time.Millisecond,

		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, tokens, testLogger())
	require.NoError(t, err)
	return c
}

func TestAccessToken_CachedInStore(t *testing.T) {
	m := newMockArchive(t)
	store := cache.NewMemoryStore(16, 0)
	c := newTestClient(t, m, cache.NewResilient(store, 1, 0, testLogger()))
	ctx := context.Background()

	for range 3 {
		token, err := c.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "archive-token", token)
	}
	assert.Equal(t, int32(1), m.tokenRequests.Load())

	// Токен лежит под отдельным ключом
	cached, err := store.Get(ctx, cachekey.ArchiveToken("client"))
	require.NoError(t, err)
	assert.Equal(t, "archive-token", string(cached))
}

func TestAccessToken_RejectedCredentials(t *testing.T) {
	m := newMockArchive(t)
	c, err := New(Options{Host: m.server.URL, ClientID: "client", ClientSecret: "wrong", Timeout: time.Second},
		cache.NewResilient(cache.NewMemoryStore(16, 0), 1, 0, testLogger()), testLogger())
	require.NoError(t, err)

	_, err = c.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestFindByIdentifier(t *testing.T) {
	m := newMockArchive(t)
	m.results["700:abc123"] = []map[string]any{{"href": "/fotoweb/archives/5000/asset-1", "filename": "a.jpg"}}
	m.results["700:dup"] = []map[string]any{{"href": "/a"}, {"href": "/b"}}
	c := newTestClient(t, m, nil)
	ctx := context.Background()

	asset, err := c.FindByIdentifier(ctx, []string{"5000"}, "700", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", asset.Filename)

	_, err = c.FindByIdentifier(ctx, []string{"5000"}, "700", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.FindByIdentifier(ctx, []string{"5000"}, "700", "dup")
	assert.ErrorIs(t, err, ErrMultipleMatches)
}

func TestSearch_PagingAndLimit(t *testing.T) {
	m := newMockArchive(t)
	m.results["paged"] = []map[string]any{{"href": "/1"}, {"href": "/2"}}
	c := newTestClient(t, m, nil)
	ctx := context.Background()

	all, err := c.Search(ctx, []string{"5000"}, Query("paged"), 0)
	require.NoError(t, err)
	assert.Len(t, all, 4, "вторая страница по paging.next")

	limited, err := c.Search(ctx, []string{"5000"}, Query("paged"), 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestSearch_SuffixAppended(t *testing.T) {
	m := newMockArchive(t)
	m.results["700:abc and 601:public"] = []map[string]any{{"href": "/x"}}
	c := newTestClient(t, m, nil)
	c.searchSuffix = "and 601:public"

	assets, err := c.Search(context.Background(), []string{"5000"}, Eq("700", "abc"), 0)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestSearch_NotSearchable(t *testing.T) {
	m := newMockArchive(t)
	c := newTestClient(t, m, nil)

	_, err := c.Search(context.Background(), []string{"6000"}, Eq("700", "abc"), 0)
	assert.ErrorIs(t, err, ErrNotSearchable)
}

func TestRenderAndFetch_PollsUntilReady(t *testing.T) {
	m := newMockArchive(t)
	m.pendingPolls = 2
	c := newTestClient(t, m, nil)
	ctx := context.Background()

	location, err := c.RequestRender(ctx, "/fotoweb/archives/5000/asset-1/renditions/orig")
	require.NoError(t, err)
	assert.Equal(t, "/fotoweb/render/1", location)

	content, err := c.FetchRendition(ctx, location)
	require.NoError(t, err)
	assert.Equal(t, "rendered-bytes", string(content))
	assert.Equal(t, int32(3), m.renderPolls.Load())
}

func TestFetchRendition_GivesUpAfterAttempts(t *testing.T) {
	m := newMockArchive(t)
	m.pendingPolls = 100
	c := newTestClient(t, m, nil)

	_, err := c.FetchRendition(context.Background(), "/fotoweb/render/1")
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, int32(5), m.renderPolls.Load())
}

func TestFetchPreview(t *testing.T) {
	m := newMockArchive(t)
	c := newTestClient(t, m, nil)
	ctx := context.Background()

	content, err := c.FetchPreview(ctx, "/fotoweb/previews/1", "preview-token")
	require.NoError(t, err)
	assert.Equal(t, "preview-bytes", string(content))

	_, err = c.FetchPreview(ctx, "/fotoweb/previews/1", "stale")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMetadata(t *testing.T) {
	m := newMockArchive(t)
	c := newTestClient(t, m, nil)

	err := c.UpdateMetadata(context.Background(), "/fotoweb/archives/5000/asset-1", map[string]string{"700": "rabc"})
	require.NoError(t, err)

	body, _ := m.lastPatch.Load().(string)
	assert.JSONEq(t, `{"metadata":{"700":{"value":"rabc"}}}`, body)
}

func TestQueryExpressions(t *testing.T) {
	assert.Equal(t, Query("700:abc"), Eq("700", "abc"))
	assert.Equal(t, Query(`700:"two words"`), Eq("700", "two words"))
	assert.Equal(t, Query(`700:""`), Empty("700"))
	assert.Equal(t, Query(`NOT (700:"")`), Empty("700").Not())
	assert.Equal(t, Query(`(700:"") OR (701:"")`), Or(Empty("700"), Empty("701")))
	assert.Equal(t, Query("700:abc"), And(Eq("700", "abc"), ""))
	assert.True(t, strings.HasPrefix(string(ModifiedFrom("2024-01-01T00:00:00Z")), "mt>:"))
}

func TestSearch_RetriesUnavailableArchive(t *testing.T) {
	m := newMockArchive(t)
	m.results["700:rabc"] = []map[string]any{{"href": "/fotoweb/archives/5000/asset-1", "filename": "a.jpg"}}
	m.descriptorFailures.Store(1)
	c := newTestClient(t, m, nil)

	asset, err := c.FindByIdentifier(context.Background(), []string{"5000"}, "700", "rabc")
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", asset.Filename)
	assert.Equal(t, int32(2), m.descriptorHits.Load())
}

func TestSearch_GivesUpAfterRetryAttempts(t *testing.T) {
	m := newMockArchive(t)
	m.descriptorFailures.Store(100)
	c := newTestClient(t, m, nil)

	_, err := c.FindByIdentifier(context.Background(), []string{"5000"}, "700", "rabc")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, int32(3), m.descriptorHits.Load())
}

func TestRequestRender_RetryOnlyWhenNotApplied(t *testing.T) {
	m := newMockArchive(t)
	c := newTestClient(t, m, nil)
	ctx := context.Background()

	// 500 на POST: запрос мог быть выполнен, повтора нет
	m.renderStatus.Store(http.StatusInternalServerError)
	_, err := c.RequestRender(ctx, "/fotoweb/archives/5000/asset-1/renditions/orig")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(1), m.renderRequests.Load())

	// 503: архив запрос не принял, повторяется
	m.renderRequests.Store(0)
	m.renderStatus.Store(http.StatusServiceUnavailable)
	_, err = c.RequestRender(ctx, "/fotoweb/archives/5000/asset-1/renditions/orig")
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, int32(3), m.renderRequests.Load())
}

func TestFetchPreview_RetriesBadGateway(t *testing.T) {
	m := newMockArchive(t)
	m.previewFailures.Store(2)
	c := newTestClient(t, m, nil)

	content, err := c.FetchPreview(context.Background(), "/fotoweb/previews/1", "preview-token")
	require.NoError(t, err)
	assert.Equal(t, "preview-bytes", string(content))
}

func TestAccessToken_RejectedTokenIsReplaced(t *testing.T) {
	m := newMockArchive(t)
	store := cache.NewMemoryStore(16, 0)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, cachekey.ArchiveToken("client"), []byte("revoked-token"), time.Hour))
	c := newTestClient(t, m, cache.NewResilient(store, 1, 0, testLogger()))

	content, err := c.FetchPreview(ctx, "/fotoweb/previews/1", "preview-token")
	require.NoError(t, err)
	assert.Equal(t, "preview-bytes", string(content), "превью не требует токена доступа")
	assert.Equal(t, int32(0), m.tokenRequests.Load())

	_, err = c.Search(ctx, []string{"5000"}, Eq("700", "rabc"), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), m.tokenRequests.Load(), "отклонённый токен запрошен заново")

	cached, err := store.Get(ctx, cachekey.ArchiveToken("client"))
	require.NoError(t, err)
	assert.Equal(t, "archive-token", string(cached))
}

func TestTokenTTL(t *testing.T) {
	assert.Equal(t, 3600*time.Second-tokenExpiryMargin, tokenTTL(3600))
	assert.Equal(t, 20*time.Second, tokenTTL(40), "короткий токен хранится половину срока")
	assert.Equal(t, time.Duration(0), tokenTTL(0))
}
