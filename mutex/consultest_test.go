package mutex

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeConsul is an in-process stand-in for the coordination service: one lock
// key, sessions, consistent reads with real long-poll parking, acquire and
// release writes, and check-and-set deletes. Tests drive lock loss through
// the mutator methods; every mutation advances the modify index and wakes
// parked long polls.
type fakeConsul struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	index    uint64
	exists   bool
	holder   string
	value    []byte
	sessions int
	waiting  int
	changed  chan struct{}
	counts   map[string]int
}

func newFakeConsul(t *testing.T) *fakeConsul {
	f := &fakeConsul{
		t:       t,
		index:   1,
		changed: make(chan struct{}),
		counts:  make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeConsul) URL() string {
	return f.srv.URL
}

// bump advances the modify index and releases every parked long poll.
// Callers must hold f.mu.
func (f *fakeConsul) bump() {
	f.index++
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *fakeConsul) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[op]++
}

func (f *fakeConsul) requests(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

// parkedPolls reports how many long-poll reads are currently blocked waiting
// for the index to advance. Tests use it to sequence mutations against the
// client's read loop.
func (f *fakeConsul) parkedPolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

// touch rewrites the key without changing the holder, advancing the index.
func (f *fakeConsul) touch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bump()
}

// steal hands the key to another session behind the holder's back.
func (f *fakeConsul) steal(session string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = true
	f.holder = session
	f.bump()
}

// clearHolder leaves the key in place but drops its session.
func (f *fakeConsul) clearHolder() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holder = ""
	f.bump()
}

// remove deletes the key outright.
func (f *fakeConsul) remove() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = false
	f.holder = ""
	f.bump()
}

func (f *fakeConsul) holderSession() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holder
}

func (f *fakeConsul) keyExists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists
}

func (f *fakeConsul) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/v1/session/create":
		f.handleSessionCreate(w)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/v1/session/destroy/"):
		f.count("session destroy")
		_, _ = w.Write([]byte("true"))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/kv/"):
		f.handleGet(w, r)
	case r.Method == http.MethodPut && r.URL.Query().Has("acquire"):
		f.handleAcquire(w, r)
	case r.Method == http.MethodPut && r.URL.Query().Has("release"):
		f.handleRelease(w, r)
	case r.Method == http.MethodDelete && r.URL.Query().Has("cas"):
		f.handleDelete(w, r)
	default:
		f.t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeConsul) handleSessionCreate(w http.ResponseWriter) {
	f.mu.Lock()
	f.sessions++
	id := fmt.Sprintf("session-%d", f.sessions)
	f.counts["session create"]++
	f.mu.Unlock()
	_, _ = w.Write([]byte(`{"ID":"` + id + `"}`))
}

func (f *fakeConsul) handleGet(w http.ResponseWriter, r *http.Request) {
	var waitIndex uint64
	if raw := r.URL.Query().Get("index"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			f.t.Errorf("malformed index %q", raw)
		}
		waitIndex = parsed
	}
	if waitIndex > 0 {
		f.count("long-poll read")
	} else {
		f.count("plain read")
	}

	f.mu.Lock()
	for waitIndex > 0 && f.index <= waitIndex {
		ch := f.changed
		f.waiting++
		f.mu.Unlock()
		select {
		case <-ch:
		case <-r.Context().Done():
			f.mu.Lock()
			f.waiting--
			f.mu.Unlock()
			return
		}
		f.mu.Lock()
		f.waiting--
	}
	defer f.mu.Unlock()

	w.Header().Set("X-Consul-Index", strconv.FormatUint(f.index, 10))
	if !f.exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entry := map[string]string{
		"Session": f.holder,
		"Value":   base64.StdEncoding.EncodeToString(f.value),
	}
	if err := json.NewEncoder(w).Encode([]map[string]string{entry}); err != nil {
		f.t.Errorf("encode key: %v", err)
	}
}

func (f *fakeConsul) handleAcquire(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("acquire")
	value, _ := io.ReadAll(r.Body)
	f.count("acquire")

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exists && f.holder != "" && f.holder != session {
		_, _ = w.Write([]byte("false"))
		return
	}
	f.exists = true
	f.holder = session
	f.value = value
	f.bump()
	_, _ = w.Write([]byte("true"))
}

func (f *fakeConsul) handleRelease(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("release")
	f.count("release")

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists || f.holder != session {
		_, _ = w.Write([]byte("false"))
		return
	}
	f.holder = ""
	f.bump()
	_, _ = w.Write([]byte("true"))
}

func (f *fakeConsul) handleDelete(w http.ResponseWriter, r *http.Request) {
	cas, err := strconv.ParseUint(r.URL.Query().Get("cas"), 10, 64)
	if err != nil {
		f.t.Errorf("malformed cas %q", r.URL.Query().Get("cas"))
	}
	f.count("delete")

	f.mu.Lock()
	defer f.mu.Unlock()
	if cas != f.index {
		_, _ = w.Write([]byte("false"))
		return
	}
	f.exists = false
	f.holder = ""
	f.bump()
	_, _ = w.Write([]byte("true"))
}
