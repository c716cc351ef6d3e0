package mutex

import "context"

// acquire obtains the lock for this holding's session. It loops until a
// verify read confirms our own session on the key; contention (a false
// acquire result, or a competitor winning a race around our write) restarts
// the wait rather than surfacing an error. Iterative on purpose: sustained
// contention must not grow the stack.
func (h *holding) acquire(ctx context.Context) error {
	session, err := h.sessionID(ctx)
	if err != nil {
		return err
	}

restart:
	for {
		if err := h.waitForFreeLock(ctx); err != nil {
			return err
		}

		for {
			won, err := h.client.AcquireKey(ctx, h.key, session, h.value)
			if err != nil {
				return err
			}
			if !won {
				// Someone else beat us to it; go back to waiting.
				continue restart
			}

			// The acquire write is advisory and not atomic with a read, so
			// confirm who actually holds the key now.
			snapshot, err := h.client.GetKey(ctx, h.key, 0)
			if err != nil {
				return err
			}
			if snapshot == nil || snapshot.Session == "" {
				// Key vanished between our write and the read; try the
				// acquire again without giving up the free slot.
				continue
			}
			h.lastIndex = snapshot.Index
			if snapshot.Session == session {
				h.logger.Debug("mutex.acquired", "key", h.key, "session", session)
				return nil
			}
			// A competitor raced us after our write went through.
			h.logger.Debug("mutex.acquire.raced", "key", h.key, "holder", snapshot.Session)
			continue restart
		}
	}
}

// waitForFreeLock blocks until the key is absent or unheld. The first read is
// plain; every subsequent read long-polls on the index the previous one
// reported, so a competitor holding the lock costs us one parked request
// instead of a retry storm.
func (h *holding) waitForFreeLock(ctx context.Context) error {
	var index uint64
	for {
		snapshot, err := h.client.GetKey(ctx, h.key, index)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return nil
		}
		h.lastIndex = snapshot.Index
		if snapshot.Session == "" {
			return nil
		}
		index = snapshot.Index
	}
}
