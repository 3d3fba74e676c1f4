package dtn

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ControlClient is the request/response side of the DTNd API: endpoint
// registration, bundle listing and download, node identity. A failed
// connection yields a temporary TransportError which drives the supervisor's
// reconnect; a non-2xx or malformed response is permanent and the item is
// skipped.
type ControlClient struct {
	baseURL string
	client  *http.Client
}

// NewControlClient builds a client for the daemon's REST interface at
// http://host:port<restPath>.
func NewControlClient(host string, port int, restPath string) *ControlClient {
	return &ControlClient{
		baseURL: fmt.Sprintf("http://%s:%d%s", host, port, restPath),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ControlClient) get(op, path string) ([]byte, error) {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return nil, &TransportError{Op: op, Temporary: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Temporary: true, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: op,
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return body, nil
}

// Ping checks that the daemon answers at all. Used by the connect loop.
func (c *ControlClient) Ping() error {
	_, err := c.get("ping", "/status/nodeid")
	return err
}

// NodeID fetches the daemon's node id, in the form "dtn://<nodeid>/" with
// the trailing slash preserved.
func (c *ControlClient) NodeID() (string, error) {
	body, err := c.get("node id", "/status/nodeid")
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(string(body)), `"`), nil
}

// Register announces an endpoint to the daemon so it keeps matching bundles
// for us.
func (c *ControlClient) Register(endpoint string) error {
	_, err := c.get("register", "/register?"+url.QueryEscape(endpoint))
	return err
}

// ListBundles returns the ids of all bundles whose addresses contain the
// given substring.
func (c *ControlClient) ListBundles(substring string) ([]string, error) {
	body, err := c.get("list bundles", "/bundles/filtered?addr="+url.QueryEscape(substring))
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, &TransportError{Op: "list bundles", Err: fmt.Errorf("malformed bundle list: %w", err)}
	}
	return ids, nil
}

// Download fetches and decodes a single bundle by id.
func (c *ControlClient) Download(bundleID string) (*Bundle, error) {
	body, err := c.get("download", "/download?"+url.QueryEscape(bundleID))
	if err != nil {
		return nil, err
	}
	return DecodeBundle(body)
}
