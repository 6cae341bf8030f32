package pubcover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eringen/pubcover/assetstore"
	"github.com/eringen/pubcover/ogimage"
	"github.com/eringen/pubcover/publish"
)

const testToken = "secret-token"

func setupTestApp(t *testing.T) *App {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server.Token = testToken
	app := New(cfg, nil, WithStore(setupTestStore(t)))
	if err := app.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func doRequest(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func putAsset(app *App, id, token string, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/api/assets/"+id, bytes.NewReader(body))
	req.Header.Set("Content-Type", "image/png")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return doRequest(app, req)
}

func TestInitRequiresToken(t *testing.T) {
	app := New(DefaultConfig(), nil, WithStore(setupTestStore(t)))
	if err := app.Init(); err == nil {
		t.Fatal("expected error without server token")
	}
}

func TestHealth(t *testing.T) {
	app := setupTestApp(t)
	rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestPutAssetRequiresToken(t *testing.T) {
	app := setupTestApp(t)

	rec := putAsset(app, "cover", "", []byte("png"), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Errorf("error body = %q (%v)", rec.Body.String(), err)
	}

	rec = putAsset(app, "cover", "wrong", []byte("png"), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}
}

func TestPutAssetCreatedThenReplaced(t *testing.T) {
	app := setupTestApp(t)
	data := []byte("first")

	rec := putAsset(app, "cover", testToken, data, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first put = %d: %s", rec.Code, rec.Body.String())
	}
	var info assetstore.AssetInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ID != "cover" || info.Size != int64(len(data)) || info.ContentType != "image/png" {
		t.Errorf("info = %+v", info)
	}
	if info.Metadata[publish.MetaHash] != publish.Hash(data) {
		t.Errorf("hash = %q, want server-computed %q", info.Metadata[publish.MetaHash], publish.Hash(data))
	}

	rec = putAsset(app, "cover", testToken, []byte("second"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second put = %d", rec.Code)
	}
}

func TestPutAssetHashMismatch(t *testing.T) {
	app := setupTestApp(t)
	header := http.Header{}
	header.Set(assetstore.MetaHeaderPrefix+"Hash", publish.Hash([]byte("other")))

	rec := putAsset(app, "cover", testToken, []byte("body"), header)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if _, err := app.Store.GetAsset(context.Background(), "cover"); err == nil {
		t.Error("asset should not be stored after a hash mismatch")
	}
}

func TestPutAssetEmptyBody(t *testing.T) {
	app := setupTestApp(t)
	if rec := putAsset(app, "cover", testToken, nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetAssetInfoAndRaw(t *testing.T) {
	app := setupTestApp(t)
	data := []byte("raw-cover")
	if rec := putAsset(app, "cover", testToken, data, nil); rec.Code != http.StatusCreated {
		t.Fatalf("put = %d", rec.Code)
	}

	rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/api/assets/cover", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("info = %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("api Cache-Control = %q", cc)
	}

	rec = doRequest(app, httptest.NewRequest(http.MethodGet, "/api/assets/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing info = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("api 404 content type = %q", rec.Header().Get("Content-Type"))
	}

	rec = doRequest(app, httptest.NewRequest(http.MethodGet, "/assets/cover", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "raw-cover" {
		t.Fatalf("raw = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	etag := rec.Header().Get("ETag")
	if etag != `"`+publish.Hash(data)+`"` {
		t.Errorf("ETag = %q", etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/assets/cover", nil)
	req.Header.Set("If-None-Match", etag)
	rec = doRequest(app, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("conditional get = %d, want 304", rec.Code)
	}

	rec = doRequest(app, httptest.NewRequest(http.MethodGet, "/assets/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing raw = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("page 404 content type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestAssetList(t *testing.T) {
	app := setupTestApp(t)
	for _, id := range []string{"a", "b"} {
		if rec := putAsset(app, id, testToken, []byte(id), nil); rec.Code != http.StatusCreated {
			t.Fatalf("put %s = %d", id, rec.Code)
		}
	}
	rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/api/assets", nil))
	var list []assetstore.AssetInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d assets, want 2", len(list))
	}

	rec = doRequest(app, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/assets/a") {
		t.Error("index should link stored covers")
	}
}

func TestOGPreview(t *testing.T) {
	app := setupTestApp(t)
	if err := app.Store.SavePost(Post{Slug: "hello", Title: "Hello World", Date: "2024-01-01", Published: true}); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}

	rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/og/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing post = %d", rec.Code)
	}

	rec = doRequest(app, httptest.NewRequest(http.MethodGet, "/og/hello", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("preview = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("X-Font-Size") == "" {
		t.Error("X-Font-Size header missing")
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestRunList(t *testing.T) {
	app := setupTestApp(t)
	report := Report{RunID: "r1", Items: []ItemResult{{ID: "a", Status: ItemUploaded}}}
	if err := app.Store.RecordRun(context.Background(), report); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))
	var runs []RunEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "r1" {
		t.Errorf("runs = %+v", runs)
	}

	rec = doRequest(app, httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", rec.Code)
	}
}

func TestAuthRateLimit(t *testing.T) {
	app := setupTestApp(t)
	for i := 0; i < 5; i++ {
		if rec := putAsset(app, "cover", "wrong", []byte("x"), nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d", i+1, rec.Code)
		}
	}
	// Even the right token is refused once the IP is locked out.
	if rec := putAsset(app, "cover", testToken, []byte("x"), nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("locked out = %d, want 429", rec.Code)
	}
}

func TestHTTPStoreAgainstServer(t *testing.T) {
	app := setupTestApp(t)
	srv := httptest.NewServer(app.Echo)
	defer srv.Close()

	store := assetstore.NewHTTPStore(srv.URL, assetstore.WithToken(testToken))
	p := publish.NewPublisher(store)
	ctx := context.Background()

	if res := p.Publish(ctx, "hello world", rawImage("cover")); res.Status != publish.StatusUploaded {
		t.Fatalf("first publish = %+v", res)
	}
	if res := p.Publish(ctx, "hello world", rawImage("cover")); res.Status != publish.StatusSkipped {
		t.Fatalf("second publish = %+v", res)
	}
	asset, err := app.Store.GetAsset(ctx, "hello world")
	if err != nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if asset.Hash != publish.Hash([]byte("cover")) {
		t.Errorf("stored hash = %q", asset.Hash)
	}
}

func TestPreviewCacheReusesRenders(t *testing.T) {
	c := newPreviewCache(testRenderer(t), 2, time.Minute)

	first, err := c.get("Cached Title")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second, err := c.get("Cached Title")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if first.hash != second.hash || c.entries.Len() != 1 {
		t.Errorf("expected one cached preview, have %d", c.entries.Len())
	}

	for _, title := range []string{"A", "B", "C"} {
		if _, err := c.get(title); err != nil {
			t.Fatalf("get(%s) failed: %v", title, err)
		}
	}
	if c.entries.Len() != 2 {
		t.Errorf("cache holds %d previews, want size bound 2", c.entries.Len())
	}

	if _, err := c.get(strings.Repeat("overflowing ", 800)); !errors.Is(err, ogimage.ErrTextOverflow) {
		t.Errorf("overflow err = %v", err)
	}
}

func TestAssetIDWithPercentIsNotDecodedTwice(t *testing.T) {
	app := setupTestApp(t)
	srv := httptest.NewServer(app.Echo)
	defer srv.Close()

	store := assetstore.NewHTTPStore(srv.URL, assetstore.WithToken(testToken))
	ctx := context.Background()
	data := []byte("percent")
	meta := publish.Metadata{publish.MetaHash: publish.Hash(data)}
	if err := store.Put(ctx, "a%41", data, meta); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := app.Store.GetAsset(ctx, "a%41"); err != nil {
		t.Fatalf("asset not stored under its own id: %v", err)
	}
	if _, err := app.Store.GetAsset(ctx, "aA"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("asset leaked to decoded id aA: %v", err)
	}
	rec, err := store.Get(ctx, "a%41")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.ID != "a%41" || rec.Metadata.Hash() != publish.Hash(data) {
		t.Errorf("record = %+v", rec)
	}
	if _, err := store.Get(ctx, "aA"); !errors.Is(err, publish.ErrNotFound) {
		t.Errorf("Get(aA) error = %v, want ErrNotFound", err)
	}
}

func TestInitRejectsInvalidCanvas(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Token = testToken
	cfg.Canvas.Fill = "red"
	app := New(cfg, nil, WithStore(setupTestStore(t)))
	defer app.Close()
	if err := app.Init(); err == nil || !strings.Contains(err.Error(), "canvas.fill") {
		t.Fatalf("Init error = %v, want canvas.fill error", err)
	}
}
