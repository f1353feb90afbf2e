// Package rendezvous implements the filesystem handshake a gateway uses to
// discover the HTTP address a newly spawned worker is listening on: the
// worker writes a one-line URL file into a shared directory, and the
// gateway polls for it to appear.
package rendezvous

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rezkam/umbridge-gateway/internal/joberr"
)

// DefaultPollInterval is how often WaitForURL checks for the url file
// when the caller does not override it.
const DefaultPollInterval = 500 * time.Millisecond

// urlFilePattern matches the url-<jobId>.txt naming convention so Purge
// only removes rendezvous files, never arbitrary directory contents.
var urlFilePattern = regexp.MustCompile(`^url-\d+\.txt$`)

// FileRendezvous waits for and reads worker URL files in a shared
// directory.
type FileRendezvous struct {
	dir          string
	pollInterval time.Duration
}

// New constructs a FileRendezvous rooted at dir, polling at interval (or
// DefaultPollInterval if interval is zero).
func New(dir string, interval time.Duration) *FileRendezvous {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &FileRendezvous{dir: dir, pollInterval: interval}
}

// URLFileName returns the rendezvous file name a worker for jobID is
// expected to write: url-<jobId>.txt.
func URLFileName(jobID string) string {
	return fmt.Sprintf("url-%s.txt", jobID)
}

// Dir returns the rendezvous directory, for embedding in a worker's init
// message.
func (f *FileRendezvous) Dir() string {
	return f.dir
}

// Path returns the full rendezvous path for jobID.
func (f *FileRendezvous) Path(jobID string) string {
	return filepath.Join(f.dir, URLFileName(jobID))
}

// errNotYetWritten signals the operation to retry: the file is absent or
// still empty, which is the expected steady state while a worker boots.
var errNotYetWritten = errors.New("rendezvous file not yet written")

// WaitForURL blocks, polling at f.pollInterval, until the url file for
// jobID appears and contains a non-empty first line, or ctx is done. The
// caller supplies the deadline via ctx; there is no built-in timeout.
func (f *FileRendezvous) WaitForURL(ctx context.Context, jobID string) (string, error) {
	path := f.Path(jobID)

	operation := func() (string, error) {
		line, err := readSingleLine(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", errNotYetWritten
			}
			return "", backoff.Permanent(joberr.IoError{Path: path, Err: err})
		}
		if line == "" {
			return "", errNotYetWritten
		}
		return line, nil
	}

	// backoff.Retry gives up after 15 minutes by default; a zero limit
	// removes that cap so ctx is the only deadline.
	url, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(f.pollInterval)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", joberr.RendezvousTimeout{JobID: jobID, Err: err}
		}
		return "", err
	}
	return url, nil
}

// readSingleLine reads the first line of path, trimming the trailing
// newline. Returns os.ErrNotExist (wrapped) if the file does not exist yet.
func readSingleLine(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", nil
}

// Purge removes every existing url-<jobId>.txt file in the rendezvous
// directory, clearing stale rendezvous files left over from a previous
// run without touching anything else an operator may have placed there.
func (f *FileRendezvous) Purge() error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return joberr.IoError{Path: f.dir, Err: err}
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return joberr.IoError{Path: f.dir, Err: err}
	}

	for _, entry := range entries {
		if entry.IsDir() || !urlFilePattern.MatchString(entry.Name()) {
			continue
		}
		path := filepath.Join(f.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			return joberr.IoError{Path: path, Err: err}
		}
	}
	return nil
}

// Release removes the url file for jobID, if present. Missing files are
// not an error: the worker may never have written one, or it may already
// have been cleaned up.
func (f *FileRendezvous) Release(jobID string) error {
	if err := os.Remove(f.Path(jobID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return joberr.IoError{Path: f.Path(jobID), Err: err}
	}
	return nil
}

// RemoveFile removes a rendezvous file by its bare name (as returned by
// StaleFiles), not by job id. Missing files are not an error.
func (f *FileRendezvous) RemoveFile(name string) error {
	path := filepath.Join(f.dir, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return joberr.IoError{Path: path, Err: err}
	}
	return nil
}

// StaleFiles returns the names of every url-<jobId>.txt file in the
// rendezvous directory last modified more than maxAge ago. A WorkerBinding
// removes its own file on release, so a file this old belongs either to a
// handler that never released it (crashed, or whose release failed) or to
// an operation whose model call has been running longer than maxAge; the
// file's age alone does not tell the two apart.
func (f *FileRendezvous) StaleFiles(maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, joberr.IoError{Path: f.dir, Err: err}
	}

	var stale []string
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !urlFilePattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, entry.Name())
		}
	}
	return stale, nil
}
