// Package digest fingerprints an output tree.
package digest

import (
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/vinceanalytics/pave/internal/failure"
)

// Entry is the digest of a single file, keyed by its slash separated path
// relative to the tree root.
type Entry struct {
	Path string
	Sum  uint64
}

// Tree walks dir in lexical order and returns the per file digests together
// with a digest of the whole tree. A missing dir digests as empty.
func Tree(dir string) (uint64, []Entry, error) {
	var entries []Entry
	h := xxhash.New()
	var size [8]byte
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		sum := xxhash.Sum64(data)
		entries = append(entries, Entry{Path: rel, Sum: sum})
		h.WriteString(rel)
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(size[:], sum)
		h.Write(size[:])
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) && len(entries) == 0 {
			return h.Sum64(), nil, nil
		}
		return 0, nil, failure.IO("digest", dir, err)
	}
	return h.Sum64(), entries, nil
}
