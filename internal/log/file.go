package log

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File is a buffered log file. A log left over from a previous session is
// compressed next to it before a fresh one is started.
type File struct {
	filename string
	f        *os.File
	w        *bufio.Writer
	mu       sync.Mutex
}

func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %v", err)
	}
	b := &File{filename: path}
	if err := b.archive(); err != nil {
		return nil, err
	}
	return b, b.open()
}

func (b *File) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.w.Write(p)
	if err != nil {
		return n, err
	}
	// keep the file readable while a watch session is running
	return n, b.w.Flush()
}

func (b *File) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush messages %v", err)
	}
	return b.f.Close()
}

func (b *File) open() error {
	var err error
	b.f, err = os.Create(b.filename)
	if err != nil {
		return fmt.Errorf("failed to create new log file %s  %v", b.filename, err)
	}
	b.w = bufio.NewWriter(b.f)
	return nil
}

func (b *File) archive() error {
	old, err := os.Open(b.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open previous log file %v", err)
	}
	defer old.Close()
	now := time.Now().UTC().Format("20060102T150405")
	out := b.filename + "." + now + ".gz"
	o, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create rotation file %s  %v", out, err)
	}
	defer o.Close()
	w := gzip.NewWriter(o)
	if _, err = io.Copy(w, old); err != nil {
		return fmt.Errorf("failed to copy rotation file %v", err)
	}
	return w.Close()
}
