package state

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ajitpratap0/nebula-extract/pkg/json"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// FileStore keeps every job state in one JSON document. Writes replace the
// document atomically by renaming a temporary file over it.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileDocument struct {
	Jobs map[string]JobState `json:"jobs"`
}

// NewFileStore creates a store backed by the JSON document at path. The
// parent directory is created if needed; the file itself is created on the
// first Set.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "file state store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "create state directory").
			WithDetail("path", path)
	}
	return &FileStore{path: path}, nil
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, jobID string) (JobState, bool, error) {
	if err := validJobID(jobID); err != nil {
		return JobState{}, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return JobState{}, false, err
	}
	st, ok := doc.Jobs[jobID]
	return st, ok, nil
}

// Set implements Store.
func (f *FileStore) Set(_ context.Context, jobID string, st JobState) error {
	if err := validJobID(jobID); err != nil {
		return err
	}
	st.JobID = jobID

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Jobs[jobID] = st
	return f.write(doc)
}

// Delete implements Deleter.
func (f *FileStore) Delete(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Jobs[jobID]; !ok {
		return nil
	}
	delete(doc.Jobs, jobID)
	return f.write(doc)
}

func (f *FileStore) read() (*fileDocument, error) {
	doc := &fileDocument{Jobs: make(map[string]JobState)}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "read state file").
			WithDetail("path", f.path)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "decode state file").
			WithDetail("path", f.path)
	}
	if doc.Jobs == nil {
		doc.Jobs = make(map[string]JobState)
	}
	return doc, nil
}

func (f *FileStore) write(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "encode state file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "create temporary state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "write temporary state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "sync temporary state file")
	}
	if err := tmp.Close(); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "close temporary state file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "replace state file").
			WithDetail("path", f.path)
	}
	return nil
}
