package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const rotatedSuffixFormat = "20060102-150405.000"

// RotatingWriter appends to a log file and moves it aside once it grows
// past maxSize. It is safe for concurrent use.
type RotatingWriter struct {
	filename string
	maxSize  int64
	maxAge   time.Duration
	compress bool

	mu   sync.Mutex
	file *os.File
	size int64
	wg   sync.WaitGroup
}

// NewRotatingWriter opens filename for appending, creating its directory.
// A non-positive maxSizeMB disables rotation; a non-positive maxAgeDays
// keeps rotated files forever.
func NewRotatingWriter(filename string, maxSizeMB, maxAgeDays int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
		compress: compress,
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	w.prune()
	return w, nil
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would overflow the current file
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the file and waits for pending compressions
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

// Rotated lists the rotated files, compressed or not
func (w *RotatingWriter) Rotated() ([]string, error) {
	return filepath.Glob(w.filename + ".*")
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	rotated := w.filename + "." + time.Now().Format(rotatedSuffixFormat)
	if err := os.Rename(w.filename, rotated); err != nil {
		return err
	}

	if w.compress {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			_ = gzipFile(rotated)
		}()
	}

	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

// prune removes rotated files older than maxAge
func (w *RotatingWriter) prune() {
	if w.maxAge <= 0 {
		return
	}
	files, err := w.Rotated()
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-w.maxAge)
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		_ = os.Remove(path)
	}
}

func gzipFile(path string) error {
	if strings.HasSuffix(path, ".gz") {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	_, copyErr := io.Copy(gz, src)
	closeErr := gz.Close()
	if err := dst.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	return os.Remove(path)
}
