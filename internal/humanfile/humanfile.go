// Package humanfile reads and writes the key:value tuning file that a person
// edits while a run is in progress.
package humanfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// DefaultFileName is the tuning file looked up inside the log directory.
const DefaultFileName = "hyper.txt"

// lockTimeout bounds how long Update waits for concurrent writers.
const lockTimeout = 5 * time.Second

var ErrLocked = errors.New("tuning file is locked by a writer")

// Parse reads one key:value pair per line. Blank lines are skipped; any
// other line without exactly one colon or with a non-numeric value fails
// the whole parse.
func Parse(r io.Reader) (map[string]float64, error) {
	values := make(map[string]float64)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: expected key:value, got %q", lineNo, line)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", lineNo)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse value for %s: %w", lineNo, key, err)
		}
		values[key] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// Format renders values sorted by key.
func Format(values map[string]float64) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s:%s\n", k, strconv.FormatFloat(values[k], 'g', -1, 64))
	}
	return buf.Bytes()
}

// Read parses the file at path under a shared lock. It never waits: if a
// writer holds the lock it returns ErrLocked. A missing file is reported
// with an error satisfying errors.Is(err, os.ErrNotExist).
func Read(path string) (map[string]float64, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	lock := flock.New(lockPath(path))
	locked, err := lock.TryRLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring read lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	defer func() {
		_ = lock.Unlock()
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Update sets key to value in the file at path, keeping every other entry.
// The file is replaced atomically under an exclusive lock.
func Update(ctx context.Context, path, key string, value float64) error {
	if key == "" || strings.Contains(key, ":") {
		return fmt.Errorf("invalid key %q: must be non-empty and contain no colon", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating tuning directory: %w", err)
	}

	lock := flock.New(lockPath(path))
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("timeout waiting for tuning file lock")
	}
	defer func() {
		_ = lock.Unlock()
	}()

	values := map[string]float64{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		values, err = Parse(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("existing tuning file is malformed: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}
	values[key] = value

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, Format(values), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func lockPath(path string) string {
	return path + ".lock"
}
