package server

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"/":      "",
		"api":    "/api",
		"/api":   "/api",
		"/api/":  "/api",
		" api ":  "/api",
		"/a/b/c": "/a/b/c",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	sep := string(filepath.Separator)
	if !isSafeAbsPath("") {
		t.Fatalf("empty path must pass, it means inherit the cwd")
	}
	if !isSafeAbsPath(sep + "tmp" + sep + "work") {
		t.Fatalf("clean absolute path rejected")
	}
	if !isSafeAbsPath(sep + "tmp" + sep) {
		t.Fatalf("trailing separator alone must not reject a path")
	}
	if isSafeAbsPath("tmp" + sep + "x") {
		t.Fatalf("relative path accepted")
	}
	if isSafeAbsPath(sep + "tmp" + sep + ".." + sep + "etc") {
		t.Fatalf("traversal segment accepted")
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]int{"n": 7}) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["n"] != 7 {
		t.Fatalf("body = %q (%v)", rec.Body.String(), err)
	}
}
