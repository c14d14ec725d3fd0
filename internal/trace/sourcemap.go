package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codewithboateng/jitprof/internal/parser"
	"github.com/codewithboateng/jitprof/internal/reporting"
)

// ErrUnknownLocation is returned for call-site ids no trace described.
var ErrUnknownLocation = errors.New("unknown location")

type site struct {
	sid, iid int64
}

// SourceMap maps global call-site ids ("sid:iid") to source positions. It
// is filled by every replayed trace and is safe for concurrent use.
type SourceMap struct {
	mu      sync.RWMutex
	scripts map[int64]string
	pos     map[site][]int
}

func NewSourceMap() *SourceMap {
	return &SourceMap{
		scripts: make(map[int64]string),
		pos:     make(map[site][]int),
	}
}

func (m *SourceMap) AddScript(sid int64, file string) {
	m.mu.Lock()
	m.scripts[sid] = file
	m.mu.Unlock()
}

func (m *SourceMap) AddIID(sid, iid int64, pos []int) {
	cp := append([]int(nil), pos...)
	m.mu.Lock()
	m.pos[site{sid, iid}] = cp
	m.mu.Unlock()
}

// Resolve implements reporting.Resolver.
func (m *SourceMap) Resolve(giid string) (string, error) {
	s, err := parseGlobalIID(giid)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.pos[s]
	if !ok {
		return "", fmt.Errorf("iid %s: %w", giid, ErrUnknownLocation)
	}
	file, ok := m.scripts[s.sid]
	if !ok {
		file = "script-" + strconv.FormatInt(s.sid, 10)
	}
	return parser.Location(file, pos), nil
}

func parseGlobalIID(giid string) (site, error) {
	a, b, ok := strings.Cut(giid, ":")
	if !ok {
		return site{}, fmt.Errorf("iid %q: %w", giid, ErrUnknownLocation)
	}
	sid, err1 := strconv.ParseInt(a, 10, 64)
	iid, err2 := strconv.ParseInt(b, 10, 64)
	if err1 != nil || err2 != nil {
		return site{}, fmt.Errorf("iid %q: %w", giid, ErrUnknownLocation)
	}
	return site{sid, iid}, nil
}

// CachedResolver memoizes successful resolutions of a slower resolver.
type CachedResolver struct {
	next  reporting.Resolver
	cache *lru.Cache[string, string]
}

func NewCachedResolver(next reporting.Resolver, size int) (*CachedResolver, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("location cache: %w", err)
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

func (c *CachedResolver) Resolve(giid string) (string, error) {
	if loc, ok := c.cache.Get(giid); ok {
		return loc, nil
	}
	loc, err := c.next.Resolve(giid)
	if err != nil {
		return "", err
	}
	c.cache.Add(giid, loc)
	return loc, nil
}
