package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
	tu "github.com/desertthunder/leadsync/internal/testing"
)

func TestFileExtractor(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)

	write := func(t *testing.T, content string) *FileExtractor {
		t.Helper()
		path := filepath.Join(t.TempDir(), "candidates.json")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write candidates: %v", err)
		}
		e := NewFileExtractor(path)
		e.now = func() time.Time { return fixed }
		return e
	}

	t.Run("JSON array", func(t *testing.T) {
		e := write(t, `[{"userId":"u1","username":"alice","timestamp":5},{"userId":"u2","username":"bob"}]`)

		records, err := e.Extract(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].Timestamp != 5 {
			t.Errorf("expected existing timestamp kept, got %d", records[0].Timestamp)
		}
		if records[1].Timestamp != fixed.UnixMilli() {
			t.Errorf("expected stamped timestamp, got %d", records[1].Timestamp)
		}
	})

	t.Run("JSON lines", func(t *testing.T) {
		e := write(t, "{\"userId\":\"u1\",\"username\":\"alice\"}\n\n{\"userId\":\"u2\",\"username\":\"bob\"}\n")

		records, err := e.Extract(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 2 || records[1].ID != "u2" {
			t.Errorf("unexpected records: %+v", records)
		}
	})

	t.Run("derives id from link", func(t *testing.T) {
		e := write(t, `[{"username":"alice","userLink":"https://www.douyin.com/user/MS4w?from=feed"}]`)

		records, err := e.Extract(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records[0].ID != "MS4w" {
			t.Errorf("expected derived id MS4w, got %q", records[0].ID)
		}
	})

	t.Run("empty file yields nothing", func(t *testing.T) {
		records, err := write(t, "  \n").Extract(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("expected no records, got %d", len(records))
		}
	})

	t.Run("bad line is reported", func(t *testing.T) {
		_, err := write(t, "{\"userId\":\"u1\"}\nnot json\n").Extract(context.Background())
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected line number in %q", err.Error())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		e := NewFileExtractor(filepath.Join(t.TempDir(), "missing.json"))
		if _, err := e.Extract(context.Background()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := write(t, "[]").Extract(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestExtractorFunc(t *testing.T) {
	var e Extractor = ExtractorFunc(func(context.Context) ([]models.UserRecord, error) {
		return tu.Records(2), nil
	})
	records, err := e.Extract(context.Background())
	if err != nil || len(records) != 2 {
		t.Errorf("unexpected result: %v, %v", records, err)
	}
}

func TestFileDownloader(t *testing.T) {
	readOnly := func(t *testing.T, dir string) string {
		t.Helper()
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("failed to read dir: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected one file, got %d", len(entries))
		}
		return string(tu.MustReadFile(t, filepath.Join(dir, entries[0].Name())))
	}

	t.Run("base64 data url", func(t *testing.T) {
		dir := t.TempDir()
		d := NewFileDownloader(dir, nil)

		id, err := d.Download(context.Background(), DownloadRequest{
			URL:      DataURL("text/plain;charset=utf-8", []byte("hello")),
			Filename: "export.txt",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" {
			t.Error("expected a download id")
		}
		if got := string(tu.MustReadFile(t, filepath.Join(dir, "export.txt"))); got != "hello" {
			t.Errorf("expected hello, got %q", got)
		}
	})

	t.Run("percent encoded data url", func(t *testing.T) {
		dir := t.TempDir()
		d := NewFileDownloader(dir, nil)

		if _, err := d.Download(context.Background(), DownloadRequest{URL: "data:text/plain,a%20b", Filename: "x.txt"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := readOnly(t, dir); got != "a b" {
			t.Errorf("expected 'a b', got %q", got)
		}
	})

	t.Run("does not overwrite", func(t *testing.T) {
		dir := t.TempDir()
		d := NewFileDownloader(dir, nil)
		req := DownloadRequest{URL: DataURL("text/plain", []byte("1")), Filename: "export.txt"}

		for range 3 {
			if _, err := d.Download(context.Background(), req); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		tu.AssertFileExists(t, filepath.Join(dir, "export.txt"))
		tu.AssertFileExists(t, filepath.Join(dir, "export (1).txt"))
		tu.AssertFileExists(t, filepath.Join(dir, "export (2).txt"))
	})

	t.Run("filename cannot escape directory", func(t *testing.T) {
		dir := t.TempDir()
		d := NewFileDownloader(filepath.Join(dir, "out"), nil)

		if _, err := d.Download(context.Background(), DownloadRequest{URL: "data:,x", Filename: "../../evil.txt"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "out", "evil.txt"))
	})

	t.Run("file url", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "src.txt")
		if err := os.WriteFile(src, []byte("from disk"), 0644); err != nil {
			t.Fatalf("failed to write source: %v", err)
		}
		dir := t.TempDir()

		if _, err := NewFileDownloader(dir, nil).Download(context.Background(), DownloadRequest{URL: "file://" + src, Filename: "copy.txt"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := readOnly(t, dir); got != "from disk" {
			t.Errorf("expected copied content, got %q", got)
		}
	})

	t.Run("http url", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("expected GET, got %s", r.Method)
			}
			w.Write([]byte("remote"))
		}))
		defer server.Close()

		dir := t.TempDir()
		if _, err := NewFileDownloader(dir, server.Client()).Download(context.Background(), DownloadRequest{URL: server.URL, Filename: "r.txt"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := readOnly(t, dir); got != "remote" {
			t.Errorf("expected remote, got %q", got)
		}
	})

	t.Run("http status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := NewFileDownloader(t.TempDir(), server.Client()).Download(context.Background(), DownloadRequest{URL: server.URL})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("network down"))}

		_, err := NewFileDownloader(t.TempDir(), client).Download(context.Background(), DownloadRequest{URL: "https://example.com/x"})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("body read failure", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(&tu.FCloser{})}
		client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}

		_, err := NewFileDownloader(t.TempDir(), client).Download(context.Background(), DownloadRequest{URL: "https://example.com/x"})
		if err == nil || !strings.Contains(err.Error(), "failed to read response") {
			t.Errorf("expected read failure, got %v", err)
		}
	})

	t.Run("invalid urls", func(t *testing.T) {
		tests := []string{"ftp://host/file", "data:text/plain", "data:;base64,!!!", "blob:abc"}
		for _, raw := range tests {
			t.Run(raw, func(t *testing.T) {
				_, err := NewFileDownloader(t.TempDir(), nil).Download(context.Background(), DownloadRequest{URL: raw})
				if !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})
		}
	})

	t.Run("empty filename uses id", func(t *testing.T) {
		dir := t.TempDir()
		id, err := NewFileDownloader(dir, nil).Download(context.Background(), DownloadRequest{URL: "data:,x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dir, id+".txt"))
	})
}
