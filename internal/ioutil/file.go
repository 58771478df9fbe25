package ioutil

import (
	"bufio"
	"os"

	"github.com/submergedb/coldb/errors"
)

// FileWriter is a buffered writer over a file that did not exist before it
// was created.
type FileWriter struct {
	*bufio.Writer
	file *os.File
	path string
}

// CreateFile creates path for writing, failing if it already exists.
func CreateFile(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &FileWriter{Writer: bufio.NewWriter(f), file: f, path: path}, nil
}

// Path returns the path the file was created at.
func (fw *FileWriter) Path() string { return fw.path }

// Close flushes, syncs and closes the file.
func (fw *FileWriter) Close() error {
	if err := fw.Flush(); err != nil {
		fw.file.Close()
		return errors.WithStack(err)
	}
	if err := fw.file.Sync(); err != nil {
		fw.file.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(fw.file.Close())
}

// Reopen closes the writer and opens the same path for reading. The caller
// owns the returned file.
func (fw *FileWriter) Reopen() (*os.File, int64, error) {
	if err := fw.Close(); err != nil {
		return nil, 0, err
	}
	return OpenFile(fw.path)
}

// OpenFile opens path for reading and returns its size.
func OpenFile(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.WithStack(err)
	}
	return f, fi.Size(), nil
}
