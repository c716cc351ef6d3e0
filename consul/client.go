// Package consul is a minimal client for the parts of the Consul HTTP API
// that distributed locking needs: sessions, consistent key reads with
// long-poll blocking, acquire/release writes, and check-and-set deletes.
package consul

import (
	"io"
	"net/http"
	"strings"

	"pkt.systems/pslog"
)

// DefaultAddress is used when no coordination service address is configured.
const DefaultAddress = "http://localhost:8500"

// Client issues requests against one Consul agent. It is safe for concurrent
// use; every request rides its own connection since a blocking read may hold
// the connection open for the full long-poll window.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     pslog.Base
}

// Option customises client construction.
type Option func(*Client)

// WithHTTPClient supplies a custom HTTP client. The default disables
// keep-alives and carries no client-level timeout; blocking reads rely on
// context cancellation instead.
func WithHTTPClient(c *http.Client) Option {
	return func(cli *Client) {
		if c != nil {
			cli.httpClient = c
		}
	}
}

// WithLogger supplies a logger for request diagnostics. Passing nil keeps the
// default no-op logger.
func WithLogger(logger pslog.Base) Option {
	return func(cli *Client) {
		if logger != nil {
			cli.logger = logger
		}
	}
}

// New creates a client for the agent at baseURL. An empty baseURL selects
// DefaultAddress.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultAddress
	}
	cli := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		logger: pslog.NoopLogger(),
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

func (c *Client) do(op string, req *http.Request) (int, http.Header, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &Error{Op: op, Err: err}
	}
	c.logger.Trace("consul.request", "op", op, "status", resp.StatusCode)
	return resp.StatusCode, resp.Header, body, nil
}

// parseBool interprets the literal true/false bodies Consul returns for
// acquire, release, session destroy and check-and-set delete.
func parseBool(op string, body []byte) (bool, error) {
	switch strings.TrimSpace(string(body)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, &Error{Op: op, Status: http.StatusOK, Detail: "response body is not a boolean"}
	}
}
