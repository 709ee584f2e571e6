package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileStorage keeps every slot in its own file under dir. Writes go through
// a temp file and a rename so readers never see a partial value.
type FileStorage struct {
	dir    string
	logger *zap.Logger
}

func NewFileStorage(dir string, logger *zap.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStorage{dir: dir, logger: logger}, nil
}

func (f *FileStorage) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot file: %w", err)
	}
	return data, nil
}

func (f *FileStorage) Set(_ context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".slot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write slot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close slot file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace slot file: %w", err)
	}
	return nil
}

func (f *FileStorage) Remove(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove slot file: %w", err)
	}
	return nil
}

func (f *FileStorage) Close() error {
	return nil
}

// Watch reports every create, write, rename or removal of the slot's file,
// including the ones made by this process.
func (f *FileStorage) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}

	name := f.fileName(key)
	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				// coalesce bursts; one pending signal is enough
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("slot watcher error", zap.String("key", key), zap.Error(err))
			}
		}
	}()

	return changes, nil
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.dir, f.fileName(key))
}

func (f *FileStorage) fileName(key string) string {
	return url.QueryEscape(key) + ".json"
}
