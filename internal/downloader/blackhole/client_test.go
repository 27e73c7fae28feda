package blackhole

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bindery/bindery/internal/downloader/types"
)

func newTestClient(t *testing.T, clientType types.ClientType) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFromConfig(clientType, &types.ClientConfig{DownloadDir: dir}), dir
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestClient_Test(t *testing.T) {
	client, dir := newTestClient(t, types.ClientTypeTorrentBlackhole)
	if err := client.Test(context.Background()); err != nil {
		t.Fatalf("Test() failed: %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("expected probe file to be removed, found %v", names)
	}

	missing := NewFromConfig(types.ClientTypeTorrentBlackhole, &types.ClientConfig{DownloadDir: filepath.Join(dir, "nope")})
	if err := missing.Test(context.Background()); err == nil {
		t.Error("expected error for missing folder")
	}

	unset := NewFromConfig(types.ClientTypeTorrentBlackhole, &types.ClientConfig{})
	if err := unset.Test(context.Background()); err == nil {
		t.Error("expected error for unconfigured folder")
	}
}

func TestClient_Add_FetchesRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<nzb/>"))
	}))
	defer server.Close()

	client, dir := newTestClient(t, types.ClientTypeUsenetBlackhole)
	id, err := client.Add(context.Background(), &types.AddOptions{URL: server.URL + "/dune.nzb", Name: "Dune: Deluxe"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if id.IsAssigned() {
		t.Errorf("expected unassigned id, got %s", id)
	}

	names := listDir(t, dir)
	if len(names) != 1 {
		t.Fatalf("expected one file, got %v", names)
	}
	if !strings.HasPrefix(names[0], "Dune_ Deluxe-") || !strings.HasSuffix(names[0], ".nzb") {
		t.Errorf("unexpected file name %s", names[0])
	}
	data, _ := os.ReadFile(filepath.Join(dir, names[0]))
	if string(data) != "<nzb/>" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestClient_Add_Magnet(t *testing.T) {
	client, dir := newTestClient(t, types.ClientTypeTorrentBlackhole)
	magnet := "magnet:?xt=urn:btih:abc"
	if _, err := client.Add(context.Background(), &types.AddOptions{URL: magnet}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	names := listDir(t, dir)
	if len(names) != 1 || !strings.HasSuffix(names[0], ".magnet") {
		t.Fatalf("expected one magnet file, got %v", names)
	}
	data, _ := os.ReadFile(filepath.Join(dir, names[0]))
	if string(data) != magnet {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestClient_Add_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, dir := newTestClient(t, types.ClientTypeTorrentBlackhole)
	if _, err := client.Add(context.Background(), &types.AddOptions{URL: server.URL}); err == nil {
		t.Fatal("expected fetch failure")
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("expected no files, got %v", names)
	}
}

func TestClient_Remove(t *testing.T) {
	client, _ := newTestClient(t, types.ClientTypeTorrentBlackhole)
	if err := client.Remove(context.Background(), types.Assigned("x"), false); !errors.Is(err, types.ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented, got %v", err)
	}
}
