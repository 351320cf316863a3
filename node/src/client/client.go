package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/protocol"
)

// ErrUnsupported is returned when the server answers "Unsupported command"
var ErrUnsupported = errors.New("unsupported command")

// Config defines dial and request behavior
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

// conn is a line-oriented connection shared by both clients. One request is
// in flight at a time.
type conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	mu      sync.Mutex
}

func dial(addr string, config Config) (*conn, error) {
	attempts := config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		c, err := net.DialTimeout("tcp", addr, config.Timeout)
		if err == nil {
			return &conn{netConn: c, reader: bufio.NewReader(c), timeout: config.Timeout}, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(config.RetryDelay)
		}
	}
	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", addr, attempts, lastErr)
}

// roundTrip writes one line and reads one line back, without the newline
func (c *conn) roundTrip(line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		_ = c.netConn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.netConn.Write([]byte(line + "\n")); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	reply, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

func (c *conn) close() error {
	return c.netConn.Close()
}

// Client speaks the text protocol
type Client struct {
	conn *conn
}

// Dial connects to a text protocol server, retrying on failure
func Dial(addr string, config Config) (*Client, error) {
	c, err := dial(addr, config)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

// Set stores a key-value pair. Neither may contain whitespace.
func (c *Client) Set(key, value string) error {
	if err := checkToken("key", key); err != nil {
		return err
	}
	if err := checkToken("value", value); err != nil {
		return err
	}
	reply, err := c.Do(fmt.Sprintf("SET %s %s", key, value))
	if err != nil {
		return err
	}
	return expect(reply, protocol.TextSetOK)
}

// Get retrieves the value for key. found is false when the key is absent.
func (c *Client) Get(key string) (value string, found bool, err error) {
	if err := checkToken("key", key); err != nil {
		return "", false, err
	}
	reply, err := c.Do("GET " + key)
	if err != nil {
		return "", false, err
	}
	switch {
	case reply == strings.TrimSuffix(protocol.TextNotFound, "\n"):
		return "", false, nil
	case reply == strings.TrimSuffix(protocol.TextUnsupported, "\n"):
		return "", false, ErrUnsupported
	case strings.HasPrefix(reply, "Error: "):
		return "", false, errors.New(strings.TrimPrefix(reply, "Error: "))
	}
	return reply, true, nil
}

// Delete removes key. Deleting an absent key succeeds.
func (c *Client) Delete(key string) error {
	if err := checkToken("key", key); err != nil {
		return err
	}
	reply, err := c.Do("DELETE " + key)
	if err != nil {
		return err
	}
	return expect(reply, protocol.TextDeleteOK)
}

// Do sends a raw command line and returns the raw reply line
func (c *Client) Do(line string) (string, error) {
	return c.conn.roundTrip(line)
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.close()
}

func checkToken(name, s string) error {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return fmt.Errorf("%s must be a non-empty token without whitespace", name)
	}
	return nil
}

func expect(reply, want string) error {
	want = strings.TrimSuffix(want, "\n")
	switch {
	case reply == want:
		return nil
	case reply == strings.TrimSuffix(protocol.TextUnsupported, "\n"):
		return ErrUnsupported
	case strings.HasPrefix(reply, "Error: "):
		return errors.New(strings.TrimPrefix(reply, "Error: "))
	}
	return fmt.Errorf("unexpected response %q", reply)
}

// JSONClient speaks the structured protocol
type JSONClient struct {
	conn *conn
}

// DialJSON connects to a JSON protocol server, retrying on failure
func DialJSON(addr string, config Config) (*JSONClient, error) {
	c, err := dial(addr, config)
	if err != nil {
		return nil, err
	}
	return &JSONClient{conn: c}, nil
}

// Put stores a key-value pair
func (c *JSONClient) Put(key, value string) error {
	resp, err := c.Send(protocol.JSONRequest{Type: protocol.TypePut, Key: &key, Value: &value})
	if err != nil {
		return err
	}
	return ack(resp)
}

// BatchPut stores all pairs atomically, in order. A key repeated later in
// pairs wins.
func (c *JSONClient) BatchPut(pairs []protocol.Pair) error {
	req := protocol.JSONRequest{Type: protocol.TypeBatchPut, Pairs: make([][]string, 0, len(pairs))}
	for _, p := range pairs {
		req.Pairs = append(req.Pairs, []string{p.Key, p.Value})
	}
	resp, err := c.Send(req)
	if err != nil {
		return err
	}
	return ack(resp)
}

// Fetch retrieves the value for key. found is false when the key is absent.
func (c *JSONClient) Fetch(key string) (value string, found bool, err error) {
	resp, err := c.Send(protocol.JSONRequest{Type: protocol.TypeFetch, Key: &key})
	if err != nil {
		return "", false, err
	}
	if resp.Type == protocol.TypeError {
		return "", false, errors.New(resp.Error)
	}
	if resp.Type != protocol.TypeReply {
		return "", false, fmt.Errorf("unexpected response type %q", resp.Type)
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

// Delete removes key
func (c *JSONClient) Delete(key string) error {
	resp, err := c.Send(protocol.JSONRequest{Type: protocol.TypeDelete, Key: &key})
	if err != nil {
		return err
	}
	return ack(resp)
}

// Send encodes req and decodes the single response
func (c *JSONClient) Send(req protocol.JSONRequest) (*protocol.JSONResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.SendRaw(string(data))
}

// SendRaw sends line as is and decodes the response
func (c *JSONClient) SendRaw(line string) (*protocol.JSONResponse, error) {
	reply, err := c.conn.roundTrip(line)
	if err != nil {
		return nil, err
	}
	var resp protocol.JSONResponse
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response %q: %w", reply, err)
	}
	return &resp, nil
}

// Close closes the connection
func (c *JSONClient) Close() error {
	return c.conn.close()
}

func ack(resp *protocol.JSONResponse) error {
	switch resp.Type {
	case protocol.TypeOK:
		return nil
	case protocol.TypeError:
		return errors.New(resp.Error)
	}
	return fmt.Errorf("unexpected response type %q", resp.Type)
}
