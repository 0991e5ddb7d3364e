// internal/storage/file_storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotExist is returned when a file or directory is missing.
	ErrNotExist = fs.ErrNotExist
	// ErrTooLarge is returned by SaveStream when the input exceeds its limit.
	ErrTooLarge = errors.New("upload too large")
)

// FileStorage stores files under BaseDir with atomic writes, per-file
// locking and a small read cache.
type FileStorage struct {
	BaseDir string

	fileLocks sync.Map // full path -> *sync.RWMutex

	cache        map[string]*CacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int
}

// CacheEntry is one cached file body.
type CacheEntry struct {
	Data      []byte
	Timestamp time.Time
}

// NewFileStorage creates BaseDir if needed.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}

	return &FileStorage{
		BaseDir:      abs,
		cache:        make(map[string]*CacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 200,
	}, nil
}

// resolve joins elements under BaseDir and rejects paths escaping it.
func (s *FileStorage) resolve(elem ...string) (string, error) {
	full := filepath.Join(append([]string{s.BaseDir}, elem...)...)
	rel, err := filepath.Rel(s.BaseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", filepath.Join(elem...))
	}
	return full, nil
}

// Path returns the absolute path of a stored file.
func (s *FileStorage) Path(dirPath, filename string) (string, error) {
	return s.resolve(dirPath, filename)
}

func (s *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := s.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveTextFile writes content atomically through a temp file and rename.
func (s *FileStorage) SaveTextFile(dirPath, filename string, content []byte) error {
	fullPath, err := s.resolve(dirPath, filename)
	if err != nil {
		return err
	}

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save file: %w", err)
	}

	s.Invalidate(fullPath)
	return nil
}

// SaveStream copies r into a file atomically and returns the bytes written.
// limit caps the size; zero means unlimited.
func (s *FileStorage) SaveStream(dirPath, filename string, r io.Reader, limit int64) (int64, error) {
	fullPath, err := s.resolve(dirPath, filename)
	if err != nil {
		return 0, err
	}

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(tmp, src)
	closeErr := tmp.Close()
	switch {
	case err != nil:
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write upload: %w", err)
	case closeErr != nil:
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close upload: %w", closeErr)
	case limit > 0 && n > limit:
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("save upload: %w", err)
	}
	s.Invalidate(fullPath)
	return n, nil
}

// SaveJSONFile marshals data with indentation and saves it.
func (s *FileStorage) SaveJSONFile(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return s.SaveTextFile(dirPath, filename, content)
}

// LoadTextFile reads a file, serving recent reads from the cache.
// Missing files yield an error matching ErrNotExist.
func (s *FileStorage) LoadTextFile(dirPath, filename string) ([]byte, error) {
	fullPath, err := s.resolve(dirPath, filename)
	if err != nil {
		return nil, err
	}
	if data, ok := s.cached(fullPath); ok {
		return data, nil
	}

	lock := s.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	if data, ok := s.cached(fullPath); ok {
		return data, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	s.updateCache(fullPath, content)
	return content, nil
}

// LoadJSONFile reads and decodes a JSON file into v.
func (s *FileStorage) LoadJSONFile(dirPath, filename string, v interface{}) error {
	content, err := s.LoadTextFile(dirPath, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("decode json %s: %w", filename, err)
	}
	return nil
}

// FileExists reports whether a regular file exists.
func (s *FileStorage) FileExists(dirPath, filename string) bool {
	fullPath, err := s.resolve(dirPath, filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// DeleteDir removes a directory tree.
func (s *FileStorage) DeleteDir(dirPath string) error {
	fullPath, err := s.resolve(dirPath)
	if err != nil {
		return err
	}
	if fullPath == s.BaseDir {
		return errors.New("refusing to delete the storage root")
	}

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(fullPath); err != nil {
		return fmt.Errorf("stat directory: %w", err)
	}
	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("delete directory: %w", err)
	}
	s.removeCacheEntriesWithPrefix(fullPath + string(filepath.Separator))
	return nil
}

// ListDirs returns the names of subdirectories in sorted order. A missing
// directory lists as empty.
func (s *FileStorage) ListDirs(dirPath string) ([]string, error) {
	fullPath, err := s.resolve(dirPath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// StartCacheCleanup evicts expired entries until ctx is done.
func (s *FileStorage) StartCacheCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpiredCache()
			}
		}
	}()
}

// Invalidate drops the cached body of an absolute path.
func (s *FileStorage) Invalidate(fullPath string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	delete(s.cache, fullPath)
}

func (s *FileStorage) cached(fullPath string) ([]byte, bool) {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	entry, ok := s.cache[fullPath]
	if !ok || time.Since(entry.Timestamp) >= s.cacheExpiry {
		return nil, false
	}
	return entry.Data, true
}

func (s *FileStorage) updateCache(path string, data []byte) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.cache[path] = &CacheEntry{Data: data, Timestamp: time.Now()}
	if len(s.cache) <= s.maxCacheSize {
		return
	}

	var oldestKey string
	var oldestTime time.Time
	for key, entry := range s.cache {
		if oldestKey == "" || entry.Timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.Timestamp
		}
	}
	delete(s.cache, oldestKey)
}

func (s *FileStorage) removeCacheEntriesWithPrefix(prefix string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	for key := range s.cache {
		if strings.HasPrefix(key, prefix) {
			delete(s.cache, key)
		}
	}
}

func (s *FileStorage) cleanupExpiredCache() {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	now := time.Now()
	for path, entry := range s.cache {
		if now.Sub(entry.Timestamp) > s.cacheExpiry {
			delete(s.cache, path)
		}
	}
}
