package bench

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/basalt-pkg/apm/checksum"
)

func sumOf(body string) checksum.Checksum {
	c, err := checksum.FromHex(checksum.SHA256, sha256Hex(body))
	if err != nil {
		panic(err)
	}
	return c
}

// sha256Hex avoids importing crypto/sha256 twice in the test for a literal
// fixture; "hello" is a well-known vector.
func sha256Hex(body string) string {
	if body == "hello" {
		return "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	}
	panic("unsupported fixture body in test: " + body)
}

func TestBenchRanksFastestFirst(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("hello"))
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer fast.Close()

	want := sumOf("hello")
	results := Bench(context.Background(), NewClient(), []string{slow.URL, fast.URL}, "Contents-amd64.gz", want)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d", len(results))
	}
	if results[0].Mirror != fast.URL {
		t.Errorf("fastest mirror = %s, want %s", results[0].Mirror, fast.URL)
	}
}

func TestBenchSortsFailuresLast(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	want := sumOf("hello")
	results := Bench(context.Background(), NewClient(), []string{bad.URL, ok.URL}, "Contents-amd64.gz", want)

	if results[len(results)-1].Mirror != bad.URL {
		t.Errorf("failed mirror not sorted last: %+v", results)
	}
	if results[len(results)-1].Err == nil {
		t.Error("expected failed result to carry an error")
	}
}

func TestBenchRejectsChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("goodbye"))
	}))
	defer srv.Close()

	want := sumOf("hello")
	results := Bench(context.Background(), NewClient(), []string{srv.URL}, "Contents-amd64.gz", want)
	if results[0].Err == nil {
		t.Fatal("expected checksum mismatch to surface as an error")
	}
	if !strings.Contains(results[0].Err.Error(), "checksum") {
		t.Errorf("error = %v, want checksum mismatch", results[0].Err)
	}
}

func TestReportRendersWinnerMarker(t *testing.T) {
	var sb strings.Builder
	Report(&sb, []Result{
		{Mirror: "http://a", Duration: 10 * time.Millisecond, Size: 1024},
		{Mirror: "http://b", Err: context.DeadlineExceeded},
	})
	out := sb.String()
	if !strings.Contains(out, "*") {
		t.Errorf("expected winner marker in output: %q", out)
	}
	if !strings.Contains(out, "http://a") || !strings.Contains(out, "http://b") {
		t.Errorf("expected both mirrors in output: %q", out)
	}
}
