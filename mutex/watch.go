package mutex

import (
	"context"

	"github.com/kinnalru/consul-mutex/consul"
)

// watch long-polls the key until the hold is gone: the key deleted, its
// session cleared, or a foreign session installed. A poll that still shows
// our own session only means the index advanced (TTL renewal, unrelated
// metadata churn) and keeps the loop waiting. There is no upper bound; the
// loop runs for as long as the lock is held.
//
// watch never touches the holding's shared fields after reading the starting
// index; it reports what it saw through the returned snapshot (nil when the
// key was deleted).
func (h *holding) watch(ctx context.Context) (*consul.KeySnapshot, error) {
	session := h.session
	index := h.lastIndex
	for {
		snapshot, err := h.client.GetKey(ctx, h.key, index)
		if err != nil {
			return nil, err
		}
		if snapshot == nil || snapshot.Session != session {
			return snapshot, nil
		}
		index = snapshot.Index
	}
}

// lossError classifies a terminal watch observation into the matching
// LostLockError variant.
func lossError(snapshot *consul.KeySnapshot) *LostLockError {
	switch {
	case snapshot == nil:
		return lostKeyDeleted()
	case snapshot.Session == "":
		return lostNoSession()
	default:
		return lostToSession(snapshot.Session)
	}
}
