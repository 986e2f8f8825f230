package service_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/face"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fake blob store; refs are synthetic, nothing touches disk

type fakeBlob struct {
	mu       sync.Mutex
	uploads  int
	objects  map[string][]byte
	failNext error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: make(map[string][]byte)}
}

func (f *fakeBlob) Upload(_ context.Context, _ string, folder string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}

	f.uploads++
	ref := fmt.Sprintf("%s/ref-%d.jpg", folder, f.uploads)
	f.objects[ref] = []byte("image-bytes")
	return ref, nil
}

func (f *fakeBlob) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[ref]

	if !ok {
		return nil, errors.New("blob missing")
	}
	return data, nil
}

func (f *fakeBlob) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, ref)
	return nil
}

// fake comparator with a scripted outcome

type fakeComparator struct {
	distance   float64
	compareErr error
	hasFace    bool
	detectErr  error
}

func (f *fakeComparator) Compare(context.Context, string, []byte) (face.Result, error) {
	if f.compareErr != nil {
		return face.Result{}, f.compareErr
	}
	return face.Result{Verified: f.distance < 0.4, Distance: f.distance}, nil
}

func (f *fakeComparator) Detect(context.Context, string) (bool, error) {
	if f.detectErr != nil {
		return false, f.detectErr
	}
	return f.hasFace, nil
}

// deletion scheduler that records what was enqueued

type captureDeleter struct {
	mu   sync.Mutex
	refs []string
}

func (c *captureDeleter) Enqueue(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs = append(c.refs, ref)
}

func (c *captureDeleter) enqueued() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.refs...)
}

type fakeIssuer struct {
	err error
}

func (f *fakeIssuer) Issue(u user.User) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-for-" + u.ID, nil
}
