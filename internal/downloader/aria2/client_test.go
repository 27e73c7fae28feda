package aria2

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bindery/bindery/internal/downloader/types"
)

func respond(w http.ResponseWriter, req rpcRequest, result any) {
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	})
}

func TestClient_Type(t *testing.T) {
	client := NewFromConfig(&types.ClientConfig{})
	if client.Type() != types.ClientTypeAria2 {
		t.Errorf("expected type %s, got %s", types.ClientTypeAria2, client.Type())
	}
}

func TestClient_Test_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "aria2.getVersion" {
			t.Errorf("expected method aria2.getVersion, got %s", req.Method)
		}
		if len(req.Params) != 1 || req.Params[0] != "token:mysecret" {
			t.Errorf("expected token param, got %v", req.Params)
		}

		respond(w, req, map[string]any{
			"version":         "1.37.0",
			"enabledFeatures": []string{"BitTorrent"},
		})
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := setupTestClient(server, "mysecret")
	if err := client.Test(context.Background()); err != nil {
		t.Fatalf("Test() failed: %v", err)
	}
}

func TestClient_Test_NoSecret(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if len(req.Params) != 0 {
			t.Errorf("expected no params when no secret, got %v", req.Params)
		}
		respond(w, req, map[string]any{"version": "1.37.0"})
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := setupTestClient(server, "")
	if err := client.Test(context.Background()); err != nil {
		t.Fatalf("Test() failed: %v", err)
	}
}

func TestClient_Test_AuthFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": 1, "message": "Unauthorized"},
		})
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := setupTestClient(server, "wrongsecret")
	if err := client.Test(context.Background()); !errors.Is(err, types.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestClient_List(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		switch req.Method {
		case "aria2.tellActive":
			respond(w, req, []map[string]any{
				{
					"gid": "2089b05ecca3d829", "status": "active",
					"totalLength": "1000", "completedLength": "250", "downloadSpeed": "50",
					"dir": "/books",
					"files": []map[string]any{{
						"path": "/books/dune.epub",
						"uris": []map[string]any{{"uri": "https://example.com/dune.epub"}},
					}},
				},
				{
					"gid": "seedgid", "status": "active",
					"totalLength": "500", "completedLength": "500",
					"bittorrent": map[string]any{"info": map[string]any{"name": "Emma"}},
				},
			})
		case "aria2.tellWaiting":
			if len(req.Params) != 3 {
				t.Errorf("expected offset, count and keys, got %v", req.Params)
			}
			respond(w, req, []map[string]any{
				{"gid": "waitgid", "status": "waiting", "totalLength": "0", "completedLength": "0"},
			})
		case "aria2.tellStopped":
			respond(w, req, []map[string]any{
				{"gid": "errgid", "status": "error", "errorMessage": "No URI available."},
				{"gid": "donegid", "status": "complete", "totalLength": "10", "completedLength": "10"},
			})
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := setupTestClient(server, "")
	snaps, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(snaps) != 5 {
		t.Fatalf("expected 5 downloads, got %d", len(snaps))
	}

	dune := snaps[0]
	if dune.ID.Value() != "2089b05ecca3d829" || dune.Status != "active" || dune.Title != "dune.epub" {
		t.Errorf("unexpected snapshot %+v", dune)
	}
	if p, _ := dune.Progress.Float64(); p != 0.25 {
		t.Errorf("expected progress 0.25, got %v", p)
	}
	if dune.ETASeconds == nil || *dune.ETASeconds != 15 {
		t.Errorf("expected eta 15, got %v", dune.ETASeconds)
	}
	if dune.Comment != "https://example.com/dune.epub" {
		t.Errorf("expected source uri as comment, got %q", dune.Comment)
	}
	if dune.FilePath == nil || *dune.FilePath != "/books/dune.epub" {
		t.Errorf("unexpected file path %v", dune.FilePath)
	}

	if snaps[1].Status != "seeding" || snaps[1].Title != "Emma" {
		t.Errorf("expected seeding Emma, got %+v", snaps[1])
	}
	if snaps[2].Status != "waiting" || snaps[2].Progress != nil || snaps[2].Title != "waitgid" {
		t.Errorf("expected waiting without progress, got %+v", snaps[2])
	}
	if snaps[3].Status != "error" || snaps[3].Error != "No URI available." {
		t.Errorf("expected error item, got %+v", snaps[3])
	}
	if snaps[4].Status != "complete" {
		t.Errorf("expected complete, got %s", snaps[4].Status)
	}
}

func TestClient_List_Empty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		respond(w, req, []any{})
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := setupTestClient(server, "")
	snaps, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected no downloads, got %d", len(snaps))
	}
}

func TestClient_Add_URL(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "aria2.addUri" {
			t.Errorf("expected method aria2.addUri, got %s", req.Method)
		}
		if len(req.Params) != 3 {
			t.Errorf("expected token, uris and options, got %v", req.Params)
			return
		}
		uris, _ := req.Params[1].([]any)
		if len(uris) != 1 || uris[0] != "https://example.com/dune.epub" {
			t.Errorf("unexpected uris %v", req.Params[1])
		}
		options, _ := req.Params[2].(map[string]any)
		if options["dir"] != "/books" {
			t.Errorf("expected dir option, got %v", options)
		}

		respond(w, req, "2089b05ecca3d829")
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := setupTestClient(server, "secret")
	id, err := client.Add(context.Background(), &types.AddOptions{
		URL:         "https://example.com/dune.epub",
		DownloadDir: "/books",
	})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if id.Value() != "2089b05ecca3d829" {
		t.Errorf("expected gid, got %s", id)
	}
}

func TestClient_Add_RequiresURL(t *testing.T) {
	client := NewFromConfig(&types.ClientConfig{})
	if _, err := client.Add(context.Background(), &types.AddOptions{}); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestClient_Remove(t *testing.T) {
	var methods []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		methods = append(methods, req.Method)

		if req.Method == "aria2.forceRemove" {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]any{"code": 1, "message": "Active Download not found for GID#abc"},
			})
			return
		}
		respond(w, req, "OK")
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := setupTestClient(server, "")
	if err := client.Remove(context.Background(), types.Assigned("abc"), true); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if len(methods) != 2 || methods[1] != "aria2.removeDownloadResult" {
		t.Errorf("expected fallback to removeDownloadResult, got %v", methods)
	}
}

func TestStatusWord(t *testing.T) {
	tests := []struct {
		status    string
		total     int64
		completed int64
		want      string
	}{
		{"active", 100, 50, "active"},
		{"active", 100, 100, "seeding"},
		{"active", 0, 0, "active"},
		{"waiting", 0, 0, "waiting"},
		{"paused", 100, 10, "paused"},
		{"error", 0, 0, "error"},
		{"complete", 100, 100, "complete"},
		{"removed", 0, 0, "removed"},
	}

	for _, tt := range tests {
		if got := statusWord(tt.status, tt.total, tt.completed); got != tt.want {
			t.Errorf("statusWord(%q, %d, %d) = %q, want %q", tt.status, tt.total, tt.completed, got, tt.want)
		}
	}
}

func TestClient_BuildURL(t *testing.T) {
	client := NewFromConfig(&types.ClientConfig{Host: "nas", Port: 6800, URLBase: "aria/"})
	if got := client.buildURL(); got != "http://nas:6800/aria/jsonrpc" {
		t.Errorf("unexpected url %s", got)
	}
}

func setupTestClient(server *httptest.Server, apiKey string) *Client {
	host, _, _ := net.SplitHostPort(server.Listener.Addr().String())
	return NewFromConfig(&types.ClientConfig{
		Host:   host,
		Port:   server.Listener.Addr().(*net.TCPAddr).Port,
		APIKey: apiKey,
	})
}
