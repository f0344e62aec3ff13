package transform

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache remembers per-file results by content. It is only worth it for slow
// collaborators like image codecs whose inputs rarely change between watch
// runs.
type Cache struct {
	lru *lru.Cache[uint64, *File]
}

func NewCache(size int) (*Cache, error) {
	c, err := lru.New[uint64, *File](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

func (c *Cache) Len() int { return c.lru.Len() }

func (c *Cache) key(name string, f *File) uint64 {
	h := xxhash.New()
	h.WriteString(name)
	h.Write([]byte{0})
	h.WriteString(f.Path)
	h.Write([]byte{0})
	h.Write(f.Data)
	return h.Sum64()
}

// Memo is Each backed by c. Results for an identical name, path and content
// are served from the cache.
func Memo(c *Cache, name string, fn Func) Adapter {
	return &each{name: name, fn: fn, cache: c}
}
