package consul

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) keyURL(key string, query url.Values) string {
	u := c.baseURL + "/v1/kv/" + key
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// GetKey performs a consistent read of key. A zero index is a plain read;
// a non-zero index turns the read into a long poll that blocks until the
// key's modify index advances past it. A (nil, nil) return means the key
// does not exist.
func (c *Client) GetKey(ctx context.Context, key string, index uint64) (*KeySnapshot, error) {
	const op = "read key"

	query := url.Values{}
	query.Set("consistent", "")
	if index > 0 {
		query.Set("index", strconv.FormatUint(index, 10))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.keyURL(key, query), nil)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	status, header, body, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusNotFound:
		return nil, nil
	case http.StatusOK:
		return parseKey(header, body)
	default:
		return nil, &Error{Op: op, Status: status}
	}
}

// AcquireKey attempts to set key to value under session. A false result
// means another session holds the key; that is expected contention, not an
// error.
func (c *Client) AcquireKey(ctx context.Context, key, session string, value []byte) (bool, error) {
	const op = "acquire key"

	query := url.Values{}
	query.Set("acquire", session)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.keyURL(key, query), bytes.NewReader(value))
	if err != nil {
		return false, &Error{Op: op, Err: err}
	}
	status, _, body, err := c.do(op, req)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, &Error{Op: op, Status: status}
	}
	return parseBool(op, body)
}

// ReleaseKey gives up the hold session has on key, leaving the key in place.
func (c *Client) ReleaseKey(ctx context.Context, key, session string) (bool, error) {
	const op = "release key"

	query := url.Values{}
	query.Set("release", session)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.keyURL(key, query), nil)
	if err != nil {
		return false, &Error{Op: op, Err: err}
	}
	status, _, body, err := c.do(op, req)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, &Error{Op: op, Status: status}
	}
	return parseBool(op, body)
}

// DeleteKey removes key only if its modify index still equals index. A false
// result means the key changed underneath us and was left alone.
func (c *Client) DeleteKey(ctx context.Context, key string, index uint64) (bool, error) {
	const op = "delete key"

	query := url.Values{}
	query.Set("cas", strconv.FormatUint(index, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.keyURL(key, query), nil)
	if err != nil {
		return false, &Error{Op: op, Err: err}
	}
	status, _, body, err := c.do(op, req)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, &Error{Op: op, Status: status}
	}
	return parseBool(op, body)
}
