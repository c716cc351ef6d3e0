package mutex

import (
	"context"

	"github.com/kinnalru/consul-mutex/consul"
	"pkt.systems/pslog"
)

// holding is the transient state of one Synchronize call: the lazily created
// session and the last observed modify index. It is created when the call
// starts and torn down before the call returns; nothing in it survives across
// calls. Only the coordinator's own sequential steps mutate it — the watcher
// reads lastIndex once at startup and never writes back.
type holding struct {
	client *consul.Client
	logger pslog.Base

	key   string
	value []byte

	// session holds the memoized lease ID; empty means not created yet or
	// already destroyed.
	session   string
	lastIndex uint64
}

// sessionID returns the session for this holding, creating one on first use.
func (h *holding) sessionID(ctx context.Context) (string, error) {
	if h.session != "" {
		return h.session, nil
	}
	session, err := h.client.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	h.session = session
	return session, nil
}

// destroySession invalidates the memoized session, if any, and forgets it so
// a later sessionID call would mint a fresh one.
func (h *holding) destroySession(ctx context.Context) error {
	if h.session == "" {
		return nil
	}
	if err := h.client.DestroySession(ctx, h.session); err != nil {
		return err
	}
	h.session = ""
	return nil
}
