// Package download implements the parallel fetch pipeline shared by repo
// refresh and package installation: bounded
// concurrency, atomic temp-file-then-rename writes, streaming checksum
// verification, transparent decompression, and bounded retry of
// transient (5xx) HTTP failures.
package download

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/basalt-pkg/apm/checksum"
)

// Job is one file to fetch: a remote URL (or a local path, for file://
// mirrors and cached pool entries), its expected checksum, and the
// destination it should end up at.
type Job struct {
	URL         string
	Dest        string
	Checksum    checksum.Checksum
	Decompress  bool // decode the .xz/.gz stream named by URL's suffix before writing Dest
	Description string
}

// Downloader fetches a batch of Jobs with bounded parallelism.
type Downloader struct {
	Parallel            int
	MaxTransientRetries int
	Client              *http.Client
	ShowProgress        bool
}

// New returns a Downloader with the teacher-grounded defaults: 10-way
// parallelism and up to 3 retries of a transient failure.
func New() *Downloader {
	return &Downloader{
		Parallel:            10,
		MaxTransientRetries: 3,
		Client:              &http.Client{Timeout: 60 * time.Second},
	}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type pool struct{ ch chan bool }

func newPool(n int) *pool {
	if n < 1 {
		n = 1
	}
	return &pool{ch: make(chan bool, n)}
}
func (p *pool) lock()   { p.ch <- true }
func (p *pool) unlock() { <-p.ch }

// Fetch runs every job to completion, returning the first non-nil error
// encountered (after letting already-started jobs finish). Each job's
// destination file is written atomically: downloaded to a sibling temp
// file and renamed into place only once its checksum has been verified.
func (d *Downloader) Fetch(jobs []Job) error {
	sem := newPool(d.Parallel)
	errCh := make(chan error, len(jobs))
	var bar *progressbar.ProgressBar
	if d.ShowProgress {
		bar = progressbar.Default(int64(len(jobs)), "fetching")
	}
	for _, j := range jobs {
		j := j
		sem.lock()
		go func() {
			defer sem.unlock()
			err := d.fetchOneWithRetry(j)
			if bar != nil {
				bar.Add(1)
			}
			errCh <- err
		}()
	}
	var firstErr error
	for range jobs {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Downloader) fetchOneWithRetry(j Job) error {
	var err error
	for attempt := 0; attempt <= d.MaxTransientRetries; attempt++ {
		err = d.fetchOne(j)
		if err == nil {
			return nil
		}
		var te *transientError
		if !errors.As(err, &te) {
			return err
		}
	}
	return errors.Wrapf(err, "giving up on %s after %d attempts", j.URL, d.MaxTransientRetries+1)
}

func (d *Downloader) fetchOne(j Job) error {
	rc, err := d.open(j.URL)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(j.Dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(j.Dest), ".apm-download-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	// A zero-value Checksum (no Digest) means the caller has no expected
	// digest yet — e.g. an InRelease document, whose integrity is instead
	// established by its own PGP signature once downloaded. Skip
	// streaming verification in that case rather than failing against an
	// empty digest. The digest covers the bytes as fetched, before any
	// decompression.
	verify := len(j.Checksum.Digest) > 0
	var validator *checksum.Validator
	var src io.Reader = rc
	if verify {
		validator = checksum.NewValidator(j.Checksum)
		src = io.TeeReader(rc, validator)
	}

	var out io.Reader = src
	if j.Decompress {
		dec, err := Decompress(src, j.URL)
		if err != nil {
			tmp.Close()
			return err
		}
		out = dec
	}
	if _, err := io.Copy(tmp, out); err != nil {
		tmp.Close()
		return err
	}
	if _, err := io.Copy(io.Discard, src); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if verify && !validator.Finish() {
		return &checksum.IntegrityError{Path: j.URL, Want: j.Checksum}
	}
	return os.Rename(tmpPath, j.Dest)
}

// open fetches url, returning a local file for file:// and plain absolute
// paths and an HTTP body otherwise. A 5xx HTTP status is wrapped as a
// transientError so fetchOneWithRetry retries it; 4xx is permanent.
func (d *Downloader) open(url string) (io.ReadCloser, error) {
	if path, ok := localPath(url); ok {
		return os.Open(path)
	}
	resp, err := d.Client.Get(url)
	if err != nil {
		return nil, &transientError{err}
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	resp.Body.Close()
	err = fmt.Errorf("fetching %s: %s", url, resp.Status)
	if resp.StatusCode >= 500 {
		return nil, &transientError{err}
	}
	return nil, err
}

func localPath(url string) (string, bool) {
	const prefix = "file://"
	if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):], true
	}
	if len(url) > 0 && url[0] == '/' {
		return url, true
	}
	return "", false
}
