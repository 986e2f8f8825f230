package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/faceauth/internal/domain/verification"
)

// VerificationsRepo mirrors the postgres repo's semantics behind one lock,
// including the one-pending-per-user guarantee the partial unique index
// enforces there.
type VerificationsRepo struct {
	mu    sync.RWMutex
	items map[string]verification.Request // keyed by id
}

func NewVerificationsRepo() *VerificationsRepo {
	return &VerificationsRepo{
		items: make(map[string]verification.Request),
	}
}

func (r *VerificationsRepo) Create(_ context.Context, req verification.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.UserID == req.UserID && existing.Status == verification.StatusPending {
			return verification.ErrPendingExists
		}
	}

	r.items[req.ID] = req
	return nil
}

func (r *VerificationsRepo) GetByID(_ context.Context, id string) (verification.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.items[id]

	if !ok {
		return verification.Request{}, verification.ErrNotFound
	}
	return req, nil
}

func (r *VerificationsRepo) GetByUserAndStatus(_ context.Context, userID string, status verification.Status) (verification.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found verification.Request
	var ok bool

	for _, req := range r.items {
		if req.UserID == userID && req.Status == status {
			if !ok || req.UpdatedAt.After(found.UpdatedAt) {
				found = req
				ok = true
			}
		}
	}

	if !ok {
		return verification.Request{}, verification.ErrNotFound
	}
	return found, nil
}

func (r *VerificationsRepo) GetLatestByUser(_ context.Context, userID string) (verification.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found verification.Request
	var ok bool

	for _, req := range r.items {
		if req.UserID == userID {
			if !ok || req.UpdatedAt.After(found.UpdatedAt) {
				found = req
				ok = true
			}
		}
	}

	if !ok {
		return verification.Request{}, verification.ErrNotFound
	}
	return found, nil
}

func (r *VerificationsRepo) Approve(_ context.Context, id string) (verification.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.items[id]

	if !ok {
		return verification.Request{}, verification.ErrNotFound
	}

	if req.Status != verification.StatusPending {
		return verification.Request{}, verification.ErrNotPending
	}

	req.Status = verification.StatusApproved
	req.UpdatedAt = time.Now().UTC()
	r.items[id] = req
	return req, nil
}

func (r *VerificationsRepo) ResetToPending(_ context.Context, userID, newImageRef string) (verification.Request, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cur verification.Request
	var ok bool

	for _, req := range r.items {
		if req.UserID == userID {
			if !ok || req.UpdatedAt.After(cur.UpdatedAt) {
				cur = req
				ok = true
			}
		}
	}

	if !ok {
		return verification.Request{}, "", verification.ErrNotFound
	}

	if cur.Status == verification.StatusPending {
		return verification.Request{}, "", verification.ErrPendingExists
	}

	if cur.Status != verification.StatusApproved {
		return verification.Request{}, "", verification.ErrNotApproved
	}

	oldRef := cur.ImageRef
	cur.Status = verification.StatusPending
	cur.ImageRef = newImageRef
	cur.UpdatedAt = time.Now().UTC()
	r.items[cur.ID] = cur
	return cur, oldRef, nil
}

func (r *VerificationsRepo) UpdateImageRef(_ context.Context, id, imageRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.items[id]

	if !ok {
		return verification.ErrNotFound
	}

	req.ImageRef = imageRef
	req.UpdatedAt = time.Now().UTC()
	r.items[id] = req
	return nil
}
