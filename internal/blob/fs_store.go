package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FSStore keeps blobs on the local filesystem. Used for dev environments
// without a media host and throughout the test suite.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}

	return &FSStore{root: root}, nil
}

func (s *FSStore) Upload(_ context.Context, localPath, folder string) (string, error) {
	data, err := os.ReadFile(localPath)

	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}

	dir := filepath.Join(s.root, folder)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", err
	}

	ref := filepath.Join(folder, uuid.NewString()+filepath.Ext(localPath))

	if err := os.WriteFile(filepath.Join(s.root, ref), data, 0o660); err != nil {
		return "", err
	}

	return ref, nil
}

func (s *FSStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, ref))

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, err
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, ref string) error {
	err := os.Remove(filepath.Join(s.root, ref))

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
