package mutex

import (
	"context"
	"net/http"

	"github.com/kinnalru/consul-mutex/consul"
)

// release gives the lock back: release write, session destroy, then a
// conditional sweep of the now-ownerless key. The sweep must not remove a key
// another session has since acquired, so it re-reads first and deletes with a
// check-and-set on the index it saw; a CAS miss only means the key changed
// underneath us and is no longer ours to clean up.
func (h *holding) release(ctx context.Context) error {
	released, err := h.client.ReleaseKey(ctx, h.key, h.session)
	if err != nil {
		return err
	}
	if !released {
		// The service is telling us we never held the lock we thought we did.
		return &consul.Error{Op: "release key", Status: http.StatusOK, Detail: "release returned false"}
	}

	if err := h.destroySession(ctx); err != nil {
		return err
	}

	snapshot, err := h.client.GetKey(ctx, h.key, 0)
	if err != nil {
		return err
	}
	if snapshot == nil || snapshot.Session != "" {
		// Already gone, or someone else holds it now; leave it be.
		return nil
	}
	deleted, err := h.client.DeleteKey(ctx, h.key, snapshot.Index)
	if err != nil {
		return err
	}
	if !deleted {
		h.logger.Debug("mutex.release.sweep_skipped", "key", h.key)
	}
	return nil
}
