package consul

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
)

// indexHeader carries the modify index of a key, used both to request
// long-poll blocking and as the check-and-set token for deletes.
const indexHeader = "X-Consul-Index"

// KeySnapshot is the parsed state of one lock key at one point in time.
type KeySnapshot struct {
	// Index is the modify index reported alongside the read.
	Index uint64
	// Session identifies the current holder; empty means the key is unheld.
	Session string
	// Value is the decoded payload stored with the key.
	Value []byte
}

type keyEntry struct {
	Session string `json:"Session"`
	Value   string `json:"Value"`
}

// parseKey turns a successful GET response into a snapshot. The body must be
// a JSON array of exactly one object; anything else violates the wire
// contract for a single-key read.
func parseKey(header http.Header, body []byte) (*KeySnapshot, error) {
	var entries []keyEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &Error{Op: "read key", Status: http.StatusOK, Err: err}
	}
	if len(entries) != 1 {
		return nil, &Error{Op: "read key", Status: http.StatusOK, Detail: "expected exactly one key entry, got " + strconv.Itoa(len(entries))}
	}

	index, err := strconv.ParseUint(header.Get(indexHeader), 10, 64)
	if err != nil {
		return nil, &Error{Op: "read key", Status: http.StatusOK, Detail: "missing or malformed " + indexHeader + " header"}
	}

	snapshot := &KeySnapshot{
		Index:   index,
		Session: entries[0].Session,
	}
	if entries[0].Value != "" {
		value, err := base64.StdEncoding.DecodeString(entries[0].Value)
		if err != nil {
			return nil, &Error{Op: "read key", Status: http.StatusOK, Err: err}
		}
		snapshot.Value = value
	}
	return snapshot, nil
}
