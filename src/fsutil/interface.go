package fsutil

import "io"

// FileStore provides an interface for scratch file operations
type FileStore interface {
	// ReadFile reads a file and returns its contents
	ReadFile(path string) ([]byte, error)

	// ReadFileAsStream opens a file and returns a reader
	ReadFileAsStream(path string) (io.ReadCloser, error)

	// WriteFile writes data to a file, creating parent directories as needed
	WriteFile(path string, r io.Reader) (int64, error)

	// MakeDirectory creates a new directory and all necessary parents
	MakeDirectory(path string) error

	// RemoveAll removes a path and any children it contains
	RemoveAll(path string) error

	// GetFileStats returns the total count and size of files in a directory
	GetFileStats(path string) (count int, size int64, err error)
}
