package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/types"
)

// DefaultTimeout bounds one request, including the handler run by the agent
const DefaultTimeout = 2 * time.Minute

// EventResult is the agent's answer to a dispatched event
type EventResult struct {
	ID     string `json:"id"`
	Event  string `json:"event"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Client talks to a running agent over HTTP
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the agent listening on addr. addr may be
// host:port or a full URL.
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// Dispatch asks the agent to dispatch one event. A handler failure is
// reported in the result, not as an error.
func (c *Client) Dispatch(ctx context.Context, kind string) (*EventResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/events/"+url.PathEscape(kind), nil)
	if err != nil {
		return nil, err
	}

	var result EventResult
	if err := c.do(req, &result, http.StatusOK, http.StatusAccepted, http.StatusConflict); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status returns the agent's persisted unit state
func (c *Client) Status(ctx context.Context) (*types.UnitState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/status", nil)
	if err != nil {
		return nil, err
	}

	var state types.UnitState
	if err := c.do(req, &state, http.StatusOK); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) do(req *http.Request, out interface{}, accept ...int) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewNotReadyError("agent not reachable", err).WithContext("url", req.URL.String())
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return errors.NewIOError("failed to decode agent response", err)
			}
			return nil
		}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errors.NewInternalError(
		fmt.Sprintf("agent returned %s: %s", resp.Status, strings.TrimSpace(string(body))), nil)
}
