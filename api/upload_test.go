package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"net/http/httptest"

	"github.com/labstack/echo/v4"
)

func TestFileStoreSave(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)

	url, err := fs.Save(3, "avatar.png", strings.NewReader("png bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(url, "/3/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, url))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "png bytes" {
		t.Fatalf("unexpected contents %q", data)
	}
}

func TestUploadHandler(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(t, store)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("hello")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer u1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "/1/") {
		t.Fatalf("expected workspace-scoped url, got %s", rec.Body.String())
	}
}
