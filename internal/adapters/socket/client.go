package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

const defaultCallTimeout = 5 * time.Second

// Client connects to the hilite daemon over a Unix socket. It also serves as a
// remote worker: Tokenize satisfies ports.Worker.
type Client struct {
	sockPath string
}

// NewClient creates a client that will connect to the given socket path.
func NewClient(sockPath string) *Client {
	return &Client{sockPath: sockPath}
}

// Tokenize sends a worker-protocol request to the daemon and returns the
// reply bytes.
func (c *Client) Tokenize(ctx context.Context, req []byte) ([]byte, error) {
	resp, err := c.callContext(ctx, Request{
		ID:     uuid.NewString(),
		Method: MethodTokenize,
		Params: json.RawMessage(req),
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp.Result)
}

// Highlight asks the daemon to highlight code.
func (c *Client) Highlight(ctx context.Context, p HighlightParams) (*HighlightResult, error) {
	resp, err := c.callContext(ctx, Request{
		ID:     uuid.NewString(),
		Method: MethodHighlight,
		Params: p,
	})
	if err != nil {
		return nil, err
	}
	var result HighlightResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Grammars lists the daemon's registered grammars.
func (c *Client) Grammars() (*GrammarsResult, error) {
	resp, err := c.call(Request{
		ID:     uuid.NewString(),
		Method: MethodGrammars,
	})
	if err != nil {
		return nil, err
	}
	var result GrammarsResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health sends a health check request.
func (c *Client) Health() (*HealthResult, error) {
	resp, err := c.call(Request{
		ID:     uuid.NewString(),
		Method: MethodHealth,
	})
	if err != nil {
		return nil, err
	}
	var result HealthResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown sends a shutdown request to the daemon.
func (c *Client) Shutdown() error {
	_, err := c.call(Request{
		ID:     uuid.NewString(),
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

// decodeResult re-marshals the generic result into out.
func decodeResult(resp *Response, out interface{}) error {
	resultJSON, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(resultJSON, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

func (c *Client) call(req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()
	return c.callContext(ctx, req)
}

// callContext performs one request/response exchange. The connection deadline
// follows ctx; a ctx without deadline gets the default timeout.
func (c *Client) callContext(ctx context.Context, req Request) (*Response, error) {
	dialer := net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", c.sockPath)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCallTimeout)
	}
	conn.SetDeadline(deadline)

	// Unblock reads if ctx is cancelled before the deadline
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	// Send request
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	// Read response
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 8*1024*1024)
	if !scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
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
		return nil, fmt.Errorf("server error: %s", resp.Error)
	}
	return &resp, nil
}
