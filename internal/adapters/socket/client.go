package socket

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Timeouts for requests. Run and watch include a network fetch.
const (
	defaultTimeout = 5 * time.Second
	fetchTimeout   = 2 * time.Minute
)

// Client connects to the temme daemon over a Unix socket.
type Client struct {
	sockPath string
}

// NewClient creates a client that will connect to the given socket path.
func NewClient(sockPath string) *Client {
	return &Client{sockPath: sockPath}
}

// Run asks the daemon to evaluate document once.
func (c *Client) Run(document, url string) (*RunResult, error) {
	var result RunResult
	if err := c.do(MethodRun, TargetParams{Document: document, URL: url}, fetchTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Watch asks the daemon to start a watch session on document.
func (c *Client) Watch(document, url string) (*StatusResult, error) {
	var result StatusResult
	if err := c.do(MethodWatch, TargetParams{Document: document, URL: url}, fetchTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stop ends the daemon's watch session.
func (c *Client) Stop() (*StatusResult, error) {
	var result StatusResult
	if err := c.do(MethodStop, nil, defaultTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status returns the daemon's session snapshot.
func (c *Client) Status() (*StatusResult, error) {
	var result StatusResult
	if err := c.do(MethodStatus, nil, defaultTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History returns recent runs, newest first.
func (c *Client) History(document string, limit int) (*HistoryResult, error) {
	var result HistoryResult
	if err := c.do(MethodHistory, HistoryParams{Document: document, Limit: limit}, defaultTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health sends a health check request.
func (c *Client) Health() (*HealthResult, error) {
	var result HealthResult
	if err := c.do(MethodHealth, nil, defaultTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown sends a shutdown request to the daemon.
func (c *Client) Shutdown() error {
	_, err := c.call(Request{
		ID:     "1",
		Method: MethodShutdown,
	})
	return err
}

// Ping checks if the daemon is reachable.
func (c *Client) Ping() bool {
	conn, err := net.DialTimeout("unix", c.sockPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// do performs one request and decodes its result into out.
func (c *Client) do(method string, params any, timeout time.Duration, out any) error {
	resp, err := c.callWithTimeout(Request{ID: "1", Method: method, Params: params}, timeout)
	if err != nil {
		return err
	}
	return decodeInto(resp.Result, out)
}

// decodeInto re-marshals a generically decoded value into a typed struct.
func decodeInto(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

func (c *Client) call(req Request) (*Response, error) {
	return c.callWithTimeout(req, defaultTimeout)
}

func (c *Client) callWithTimeout(req Request, timeout time.Duration) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.sockPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	// Set deadline for the whole request/response
	conn.SetDeadline(time.Now().Add(timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		return nil, fmt.Errorf("empty response")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return nil, &ServerError{Message: resp.Error}
	}
	return &resp, nil
}

// ServerError is an error reported by the daemon for a request.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server error: " + e.Message }
