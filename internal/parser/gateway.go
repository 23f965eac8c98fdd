package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"finsight/internal/contextutil"
	"finsight/internal/document"
)

// Gateway wraps the parse service with an on-disk cache: one cache file per
// source document, named by the file stem, holding one JSON page record per
// line. A cache entry is fresh while its modification time is at or after the
// source file's; an unreadable or corrupt cache file counts as a miss.
type Gateway struct {
	svc      Service
	cacheDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGateway creates a gateway caching into cacheDir, creating it if needed.
func NewGateway(svc Service, cacheDir string) (*Gateway, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Gateway{
		svc:      svc,
		cacheDir: cacheDir,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// CachePath returns the cache file path for a source document.
func (g *Gateway) CachePath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(g.cacheDir, stem+".jsonl")
}

// IsCached reports whether a fresh cache entry exists for path.
func (g *Gateway) IsCached(path string) bool {
	cacheInfo, err := os.Stat(g.CachePath(path))
	if err != nil {
		return false
	}
	srcInfo, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !cacheInfo.ModTime().Before(srcInfo.ModTime())
}

// GetOrParse returns the parsed document for path, from cache when fresh,
// otherwise by invoking the parse service and persisting the result. A parse
// service failure is terminal for the caller's processing run.
func (g *Gateway) GetOrParse(ctx context.Context, path string) (document.Parsed, error) {
	logger := contextutil.LoggerFromContext(ctx)

	// Writes to the same cache file are serialized per source document;
	// concurrent runs over different documents do not contend.
	lock := g.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if g.IsCached(path) {
		doc, err := g.loadCache(path)
		if err == nil && len(doc) > 0 {
			logger.InfoContext(ctx, "loaded parse from cache", "path", path, "pages", len(doc))
			return doc, nil
		}
		if err != nil {
			logger.WarnContext(ctx, "cache unreadable, reparsing", "path", path, "error", err)
		}
	}

	logger.InfoContext(ctx, "parsing fresh", "path", path)
	doc, err := g.svc.Parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("parse failed for %s: %w", path, err)
	}

	if err := g.saveCache(path, doc); err != nil {
		logger.WarnContext(ctx, "failed to save parse cache", "path", path, "error", err)
	}

	return doc, nil
}

func (g *Gateway) fileLock(path string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[path] = lock
	}
	return lock
}

func (g *Gateway) loadCache(path string) (document.Parsed, error) {
	f, err := os.Open(g.CachePath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var doc document.Parsed
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var page document.Page
		if err := json.Unmarshal(line, &page); err != nil {
			return nil, fmt.Errorf("corrupt cache line: %w", err)
		}
		doc = append(doc, page)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	return doc, nil
}

func (g *Gateway) saveCache(path string, doc document.Parsed) error {
	f, err := os.Create(g.CachePath(path))
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, page := range doc {
		if err := enc.Encode(page); err != nil {
			return fmt.Errorf("failed to encode page %d: %w", page.Page, err)
		}
	}
	return w.Flush()
}
