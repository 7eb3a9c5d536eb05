package download

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/basalt-pkg/apm/checksum"
)

func TestFetchVerifiesChecksumAndRenamesAtomically(t *testing.T) {
	content := []byte("hello")
	want, err := checksum.FromHex(checksum.SHA256, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out")
	d := New()
	err = d.Fetch([]Job{{URL: srv.URL, Dest: dest, Checksum: want}})
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestFetchRejectsChecksumMismatch(t *testing.T) {
	bad, _ := checksum.FromHex(checksum.SHA256, "0000000000000000000000000000000000000000000000000000000000000000")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out")
	d := New()
	err := d.Fetch([]Job{{URL: srv.URL, Dest: dest, Checksum: bad}})
	if err == nil {
		t.Fatal("expected checksum mismatch error")
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		t.Error("destination file should not exist after a checksum failure")
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	want, _ := checksum.FromHex(checksum.SHA256, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	dir := t.TempDir()
	dest := filepath.Join(dir, "out")
	d := New()
	d.Parallel = 1
	if err := d.Fetch([]Job{{URL: srv.URL, Dest: dest, Checksum: want}}); err != nil {
		t.Fatal(err)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestFetchDoesNotRetryPermanentErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out")
	d := New()
	if err := d.Fetch([]Job{{URL: srv.URL, Dest: dest}}); err == nil {
		t.Fatal("expected error for 404")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent error, got %d", attempts)
	}
}
