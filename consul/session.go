package consul

import (
	"context"
	"encoding/json"
	"net/http"
)

// CreateSession asks the agent for a fresh session and returns its ID. A
// session is an expiring lease: the service revokes every lock it holds once
// it dies or is destroyed.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	const op = "create session"

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/session/create", nil)
	if err != nil {
		return "", &Error{Op: op, Err: err}
	}
	status, _, body, err := c.do(op, req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &Error{Op: op, Status: status}
	}

	var created struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &Error{Op: op, Status: status, Err: err}
	}
	if created.ID == "" {
		return "", &Error{Op: op, Status: status, Detail: "response carries no session ID"}
	}
	c.logger.Debug("consul.session.created", "session", created.ID)
	return created.ID, nil
}

// DestroySession invalidates the session, releasing any lock it still holds.
func (c *Client) DestroySession(ctx context.Context, session string) error {
	const op = "destroy session"

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/session/destroy/"+session, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	status, _, body, err := c.do(op, req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &Error{Op: op, Status: status}
	}
	ok, err := parseBool(op, body)
	if err != nil {
		return err
	}
	if !ok {
		return &Error{Op: op, Status: status, Detail: "destroy returned false"}
	}
	c.logger.Debug("consul.session.destroyed", "session", session)
	return nil
}
