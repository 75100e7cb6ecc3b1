// Package launcher is the line-protocol client for appdexd. Front ends
// use it instead of speaking TXT01 themselves.
package launcher

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Match is one ranked search result as reported by the daemon.
type Match struct {
	ID    string
	Score int
	Name  string
}

// Client holds a connection to the appdexd socket.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
	socket string
}

const protoVer = "TXT01" // launcher protocol, text format, v01

// NewClient connects to the daemon and sends the protocol header.
func NewClient() (*Client, error) {
	socketPath, err := getSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", socketPath, err)
	}

	if _, err := conn.Write([]byte(protoVer)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send header: %w", err)
	}

	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		socket: socketPath,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Search asks the daemon for a ranked list matching query.
func (c *Client) Search(query string) ([]Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.conn, "\"%s\nsearch\n", query); err != nil {
		return nil, fmt.Errorf("failed to send search command: %w", err)
	}
	return c.readMatches()
}

// List asks for the most-used applications, the empty-query ranking.
func (c *Client) List() ([]Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.conn, "list\n"); err != nil {
		return nil, fmt.Errorf("failed to send list command: %w", err)
	}
	return c.readMatches()
}

// Run launches the application with the given id.
func (c *Client) Run(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.conn, "\"%s\nrun\n", id); err != nil {
		return fmt.Errorf("failed to send run command: %w", err)
	}

	attrs, _, err := c.readResponse()
	if err != nil {
		return err
	}
	if errMsg, ok := attrs["error"]; ok {
		return fmt.Errorf("server error: %s", errMsg)
	}
	return nil
}

// Rescan triggers a rescan and returns the added/removed record counts.
func (c *Client) Rescan() (added, removed int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.conn, "rescan\n"); err != nil {
		return 0, 0, fmt.Errorf("failed to send rescan command: %w", err)
	}

	attrs, _, err := c.readResponse()
	if err != nil {
		return 0, 0, err
	}
	if errMsg, ok := attrs["error"]; ok {
		return 0, 0, fmt.Errorf("server error: %s", errMsg)
	}

	added, _ = strconv.Atoi(attrs["added"])
	removed, _ = strconv.Atoi(attrs["removed"])
	return added, removed, nil
}

// SetLimit overrides the result cap for this connection.
func (c *Client) SetLimit(limit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.conn, "%d\nlimit\n", limit); err != nil {
		return fmt.Errorf("failed to send limit command: %w", err)
	}

	attrs, _, err := c.readResponse()
	if err != nil {
		return err
	}
	if errMsg, ok := attrs["error"]; ok {
		return fmt.Errorf("server error: %s", errMsg)
	}
	return nil
}

// Stats returns the daemon's index summary attributes.
func (c *Client) Stats() (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.conn, "stats\n"); err != nil {
		return nil, fmt.Errorf("failed to send stats command: %w", err)
	}

	attrs, _, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	if errMsg, ok := attrs["error"]; ok {
		return nil, fmt.Errorf("server error: %s", errMsg)
	}
	return attrs, nil
}

func (c *Client) readMatches() ([]Match, error) {
	attrs, body, err := c.readResponse()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if errMsg, ok := attrs["error"]; ok {
		return nil, fmt.Errorf("server error: %s", errMsg)
	}

	var matches []Match
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		score, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		matches = append(matches, Match{
			ID:    parts[0],
			Score: score,
			Name:  parts[2],
		})
	}

	return matches, nil
}

// readResponse reads one response: header, attr lines, optional body
// after a "body:" marker, terminated by a blank line.
func (c *Client) readResponse() (map[string]string, string, error) {
	header := make([]byte, 5)
	for i := 0; i < len(header); {
		n, err := c.reader.Read(header[i:])
		if err != nil {
			return nil, "", fmt.Errorf("failed to read response header: %w", err)
		}
		i += n
	}

	attrs := make(map[string]string)
	body := strings.Builder{}
	seenBodyHeader := false

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, "", fmt.Errorf("read error: %w", err)
		}

		if strings.TrimSpace(line) == "body:" {
			seenBodyHeader = true
			continue
		}

		if line == "\n" {
			break
		}

		if seenBodyHeader {
			body.WriteString(line)
			continue
		}

		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			attrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return attrs, body.String(), nil
}
