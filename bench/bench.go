// Package bench implements `apm bench`: time a download of a known,
// already-verified reference artifact from every configured mirror and
// report which one is fastest, optionally persisting that choice.
package bench

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/basalt-pkg/apm/checksum"
	"github.com/basalt-pkg/apm/config"
)

// Result is one mirror's measured fetch time. If the fetch failed or the
// checksum didn't match, Err is set and Duration is zero.
type Result struct {
	Mirror   string
	Duration time.Duration
	Size     int64
	Err      error
}

// Client performs the timed HTTP fetches; tests substitute a fake.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns the default HTTP client, with connect/overall timeouts
// matching the reference benchmarker (5s connect, 30s overall).
func NewClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: 5 * time.Second}).DialContext
	return &http.Client{Timeout: 30 * time.Second, Transport: tr}
}

// Bench times a GET of path (relative to each mirror's base URL) from
// every mirror in mirrors, validating the response against want, and
// returns the results sorted fastest-first with failures sorted last.
func Bench(ctx context.Context, client Client, mirrors []string, path string, want checksum.Checksum) []Result {
	results := make([]Result, len(mirrors))
	for i, m := range mirrors {
		results[i] = fetchOne(ctx, client, m, path, want)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Err != nil {
			return false
		}
		if results[j].Err != nil {
			return true
		}
		return results[i].Duration < results[j].Duration
	})
	return results
}

func fetchOne(ctx context.Context, client Client, mirrorBase, path string, want checksum.Checksum) Result {
	url := mirrorBase + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Mirror: mirrorBase, Err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Result{Mirror: mirrorBase, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Mirror: mirrorBase, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}

	v := checksum.NewValidator(want)
	n, err := io.Copy(v, resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Mirror: mirrorBase, Err: err}
	}
	if !v.Finish() {
		return Result{Mirror: mirrorBase, Err: errors.New("checksum mismatch against known-good reference")}
	}
	return Result{Mirror: mirrorBase, Duration: elapsed, Size: n}
}

// ReferenceChecksum computes the SHA-256 of an already-downloaded,
// already-verified local copy of the benchmark artifact (by convention,
// the first component's Contents-<arch>.gz), establishing the "known
// good" digest every mirror's response is checked against.
func ReferenceChecksum(localPath string) (checksum.Checksum, error) {
	return checksum.FromFileSHA256(localPath)
}

// Apply persists name's fastest mirror as its preferred mirror in
// config.toml at path.
func Apply(path, repoName, mirror string) error {
	return config.SetPreferredMirror(path, repoName, mirror)
}

// Report writes a ranked table of results, fastest first, with the winner
// marked by a leading "*" and throughput rendered in human units.
func Report(w io.Writer, results []Result) {
	for i, r := range results {
		marker := " "
		if i == 0 && r.Err == nil {
			marker = "*"
		}
		if r.Err != nil {
			fmt.Fprintf(w, "  %s %s\n", color.New(color.FgRed).Sprint(r.Mirror), color.New(color.FgRed).Sprintf("(failed: %v)", r.Err))
			continue
		}
		speed := humanRate(r.Size, r.Duration)
		fmt.Fprintf(w, "%s %s  %s  (%s)\n", marker, r.Mirror, r.Duration.Round(time.Millisecond), speed)
	}
}

func humanRate(size int64, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	bps := float64(size) / d.Seconds()
	units := []string{"B/s", "KB/s", "MB/s", "GB/s"}
	i := 0
	for bps >= 1024 && i < len(units)-1 {
		bps /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", bps, units[i])
}
