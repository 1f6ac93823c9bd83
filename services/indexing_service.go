package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirectoryIndexer keeps a local drop-in directory in sync with one
// pipeline: files appearing in the directory get ingested, removed files
// get deleted from the index. Content hashes skip unchanged files.
type DirectoryIndexer struct {
	ragService RAGService
	pipeline   string

	mu     sync.Mutex
	hashes map[string]string
}

// NewDirectoryIndexer creates an indexer feeding the named pipeline.
func NewDirectoryIndexer(ragService RAGService, pipeline string) *DirectoryIndexer {
	return &DirectoryIndexer{
		ragService: ragService,
		pipeline:   pipeline,
		hashes:     make(map[string]string),
	}
}

// ScanDirectory ingests every supported file currently in the directory.
func (s *DirectoryIndexer) ScanDirectory(ctx context.Context, dirPath string) {
	log.Printf("INDEXER: Starting directory scan for: %s", dirPath)
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && isSupportedFile(path) {
			s.indexFile(ctx, path)
		}
		return nil
	})
	if err != nil {
		log.Printf("INDEXER ERROR: Error walking the path %s: %v", dirPath, err)
	}
	log.Println("INDEXER: Directory scan finished.")
}

// WatchDirectory starts a long-running process to watch for file changes in
// real-time. It blocks until the context is cancelled.
func (s *DirectoryIndexer) WatchDirectory(ctx context.Context, dirPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WATCHER ERROR: Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isSupportedFile(event.Name) {
					continue
				}

				log.Printf("WATCHER EVENT: %s", event)

				// Many editors perform a "write" by creating a temp file
				// and renaming, which can trigger multiple events. Create
				// and Write are handled the same.
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					log.Printf("WATCHER: File modified/created: %s. Re-indexing...", event.Name)
					s.indexFile(ctx, event.Name)
				} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					// Rename is often treated as Remove by watchers.
					log.Printf("WATCHER: File removed/renamed: %s. Removing from index...", event.Name)
					s.forgetFile(event.Name)
					if err := s.ragService.RemoveSource(ctx, s.pipeline, event.Name); err != nil {
						log.Printf("WATCHER ERROR: Failed to delete records for %s: %v", event.Name, err)
					}
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WATCHER ERROR: %v", err)
			case <-ctx.Done():
				log.Println("WATCHER: Context cancelled, shutting down watcher.")
				return
			}
		}
	}()

	log.Printf("WATCHER: Watching directory: %s", dirPath)
	if err := watcher.Add(dirPath); err != nil {
		log.Printf("WATCHER ERROR: Failed to add path to watcher: %v", err)
	}

	<-ctx.Done()
}

func (s *DirectoryIndexer) indexFile(ctx context.Context, path string) {
	hash, err := calculateFileHash(path)
	if err != nil {
		log.Printf("INDEXER WARN: Could not hash file %s: %v", path, err)
		return
	}
	s.mu.Lock()
	unchanged := s.hashes[path] == hash
	s.mu.Unlock()
	if unchanged {
		return
	}

	// Drop any previously indexed version before re-indexing.
	if err := s.ragService.RemoveSource(ctx, s.pipeline, path); err != nil {
		log.Printf("INDEXER ERROR: Failed to delete old version of %s: %v", path, err)
		return
	}
	if err := s.ragService.IngestFile(ctx, s.pipeline, path); err != nil {
		log.Printf("INDEXER ERROR: Failed to process file %s: %v", path, err)
		return
	}
	s.mu.Lock()
	s.hashes[path] = hash
	s.mu.Unlock()
}

func (s *DirectoryIndexer) forgetFile(path string) {
	s.mu.Lock()
	delete(s.hashes, path)
	s.mu.Unlock()
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
