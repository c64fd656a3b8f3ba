// Package cas wraps the HTTP RPC surface of a content-addressed storage
// node (a Kubo-compatible daemon). Every method is a single remote call;
// errors distinguish transport failures from remote-reported ones.
package cas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ipfsgate/ipfsgate/internal/metrics"
)

// RPCError is an error reported by the CAS node itself, as opposed to a
// transport failure reaching it.
type RPCError struct {
	Status  int
	Message string
	Code    int
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("cas rpc error (HTTP %d): %s", e.Status, e.Message)
}

// Version identifies the remote node, used by the health probe.
type Version struct {
	Version string `json:"Version"`
	Commit  string `json:"Commit"`
}

// addResponse is the JSON body returned by the add endpoint.
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Client talks to a single CAS node. It is safe for concurrent use; the
// underlying http.Client pools connections.
type Client struct {
	base     string
	username string
	password string
	http     *http.Client
}

// New creates a client for the RPC base URL (for example
// "http://localhost:5001/api/v0"). Credentials are optional basic auth.
func New(base, username, password string) *Client {
	return &Client{
		base:     strings.TrimRight(base, "/"),
		username: username,
		password: password,
		http:     &http.Client{},
	}
}

// do issues one RPC call. The node expects POST for every endpoint.
func (c *Client) do(ctx context.Context, endpoint string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := c.base + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", endpoint, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.CASOperationsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, fmt.Errorf("calling %s: %w", endpoint, err)
	}
	metrics.CASOperationsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, remoteError(resp)
	}
	return resp, nil
}

// remoteError decodes the node's error envelope, falling back to the raw
// body when it is not JSON.
func remoteError(resp *http.Response) error {
	var envelope struct {
		Message string `json:"Message"`
		Code    int    `json:"Code"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Message == "" {
		envelope.Message = strings.TrimSpace(string(raw))
	}
	return &RPCError{Status: resp.StatusCode, Message: envelope.Message, Code: envelope.Code}
}

// Add uploads content to the node, pinning it, and returns the assigned
// CID. Callers pair this with FilesCp to link the CID into MFS.
func (c *Client) Add(ctx context.Context, content []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "file")
	if err != nil {
		return "", fmt.Errorf("building add form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("building add form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building add form: %w", err)
	}

	query := url.Values{"pin": {"true"}}
	resp, err := c.do(ctx, "/add", query, &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("decoding add response: %w", err)
	}
	return added.Hash, nil
}

// FilesCp links /ipfs/{cid} into the MFS namespace at dest, creating
// parents and replacing any existing entry.
func (c *Client) FilesCp(ctx context.Context, cid, dest string) error {
	query := url.Values{
		"arg":     {"/ipfs/" + cid, dest},
		"parents": {"true"},
		"force":   {"true"},
	}
	resp, err := c.do(ctx, "/files/cp", query, nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Cat streams the content behind a CID. The caller owns the ReadCloser.
func (c *Client) Cat(ctx context.Context, cid string) (io.ReadCloser, error) {
	query := url.Values{"arg": {cid}}
	resp, err := c.do(ctx, "/cat", query, nil, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FilesRm removes an MFS entry. The path must be fully normalized,
// including the folder prefix, bucket, and key.
func (c *Client) FilesRm(ctx context.Context, path string) error {
	query := url.Values{
		"arg":       {path},
		"recursive": {"true"},
	}
	resp, err := c.do(ctx, "/files/rm", query, nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// PinRm removes the pin for a CID. Invoked only when the index shows no
// remaining references.
func (c *Client) PinRm(ctx context.Context, cid string) error {
	query := url.Values{
		"arg":       {cid},
		"recursive": {"true"},
	}
	resp, err := c.do(ctx, "/pin/rm", query, nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Version reports the remote node's version and commit.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	resp, err := c.do(ctx, "/version", nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var v Version
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding version response: %w", err)
	}
	return &v, nil
}
