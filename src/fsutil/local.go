package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFileStore implements FileStore using the local filesystem
type LocalFileStore struct {
}

// NewLocalFileStore creates a new LocalFileStore
func NewLocalFileStore() FileStore {
	return &LocalFileStore{}
}

func (fs *LocalFileStore) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (fs *LocalFileStore) ReadFileAsStream(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (fs *LocalFileStore) WriteFile(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return io.Copy(f, r)
}

func (fs *LocalFileStore) MakeDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

func (fs *LocalFileStore) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (fs *LocalFileStore) GetFileStats(path string) (count int, size int64, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return 0, 0, err
			}
			count++
			size += info.Size()
		}
	}

	return count, size, nil
}

// ScratchPath keys a downloaded file under the scratch root by its owner and
// document id, preserving the original extension.
func ScratchPath(root string, ownerID int64, documentID, fileName string) string {
	return filepath.Join(root, fmt.Sprintf("%d@%s%s", ownerID, documentID, filepath.Ext(fileName)))
}
