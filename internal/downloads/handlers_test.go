package downloads

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/bindery/bindery/internal/downloader/types"
)

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandlers_Initiate(t *testing.T) {
	h := newHarness(t)
	h.withClient(transmissionClient(1), &fakeDriver{addID: types.Assigned("abc")})
	handlers := NewHandlers(h.o)

	c, rec := newContext(http.MethodPost, "/api/v1/books/1/downloads",
		`{"release":{"title":"Dune","downloadUrl":"magnet:?xt=urn:btih:abc","seeders":12}}`)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := handlers.Initiate(c); err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var item DownloadItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if item.Status != StatusQueued || item.ClientItemID.Value() != "abc" {
		t.Errorf("unexpected item %+v", item)
	}
}

func TestHandlers_Initiate_ValidationError(t *testing.T) {
	h := newHarness(t)
	handlers := NewHandlers(h.o)

	c, _ := newContext(http.MethodPost, "/api/v1/books/1/downloads", `{"release":{"title":"Dune"}}`)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if code := httpCode(t, handlers.Initiate(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandlers_Initiate_ProviderError(t *testing.T) {
	h := newHarness(t)
	h.withClient(transmissionClient(1), &fakeDriver{addErr: errors.New("connection refused")})
	handlers := NewHandlers(h.o)

	c, _ := newContext(http.MethodPost, "/api/v1/books/1/downloads", `{"release":{"downloadUrl":"magnet:?xt=urn:btih:abc"}}`)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if code := httpCode(t, handlers.Initiate(c)); code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", code)
	}
}

func TestHandlers_Get_NotFound(t *testing.T) {
	h := newHarness(t)
	handlers := NewHandlers(h.o)

	c, _ := newContext(http.MethodGet, "/api/v1/downloads/9", "")
	c.SetParamNames("id")
	c.SetParamValues("9")

	if code := httpCode(t, handlers.Get(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandlers_InvalidID(t *testing.T) {
	h := newHarness(t)
	handlers := NewHandlers(h.o)

	c, _ := newContext(http.MethodDelete, "/api/v1/downloads/abc", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if code := httpCode(t, handlers.Cancel(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandlers_Cancel(t *testing.T) {
	h := newHarness(t)
	h.withClient(transmissionClient(1), &fakeDriver{})
	seeded := seedDownloading(h, "abc")
	handlers := NewHandlers(h.o)

	c, rec := newContext(http.MethodDelete, "/api/v1/downloads/1", "")
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := handlers.Cancel(c); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	var item DownloadItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if item.ID != seeded.ID || item.Status != StatusRemoved {
		t.Errorf("unexpected item %+v", item)
	}
}

func TestHandlers_ListActive(t *testing.T) {
	h := newHarness(t)
	h.store.seedItem(&DownloadItem{TrackedBookID: 1, Status: StatusDownloading})
	h.store.seedItem(&DownloadItem{TrackedBookID: 1, Status: StatusCompleted})
	handlers := NewHandlers(h.o)

	c, rec := newContext(http.MethodGet, "/api/v1/downloads/active", "")
	if err := handlers.ListActive(c); err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}

	var items []DownloadItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(items) != 1 || items[0].Status != StatusDownloading {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestHandlers_ListHistory_Pagination(t *testing.T) {
	h := newHarness(t)
	handlers := NewHandlers(h.o)

	c, rec := newContext(http.MethodGet, "/api/v1/downloads/history?limit=5&offset=10", "")
	if err := handlers.ListHistory(c); err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if h.store.historyArgs != [2]int{5, 10} {
		t.Errorf("unexpected paging %v", h.store.historyArgs)
	}
}

func TestHandlers_TestClient(t *testing.T) {
	h := newHarness(t)
	h.withClient(transmissionClient(1), &fakeDriver{testErr: types.ErrAuthFailed})
	handlers := NewHandlers(h.o)

	c, rec := newContext(http.MethodPost, "/api/v1/downloadclients/1/test", "")
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := handlers.TestClient(c); err != nil {
		t.Fatalf("TestClient() error = %v", err)
	}

	var resp TestClientResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Client == nil || resp.Client.Health != HealthFailed {
		t.Errorf("unexpected response %+v", resp)
	}
}
