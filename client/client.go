// client/client.go
//
// Package client talks to a myworld server over its JSON API. Client
// implements store.Remote.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vinizap/myworld/auth"
	"github.com/vinizap/myworld/domain"
)

// Error is a non-2xx response. It unwraps to the domain sentinel the
// server reported, if any.
type Error struct {
	Status  int
	Message string
	Code    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	if err, ok := domain.FromCode(e.Code); ok {
		return err
	}
	if e.Status == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(auth.Header, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Message, apiErr.Code = payload.Error, payload.Code
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}
	switch out := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*out, err = io.ReadAll(resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func entityPath(kind string, id domain.ID) (string, error) {
	if id.IsPending() {
		return "", fmt.Errorf("%s %s: %w", kind, id, domain.ErrUnconfirmed)
	}
	if id.IsRoot() {
		return "", fmt.Errorf("%s id required: %w", kind, domain.ErrInvalid)
	}
	return "/api/" + kind + "s/" + url.PathEscape(id.Value()), nil
}

func (c *Client) FetchTree(ctx context.Context) (*domain.Tree, error) {
	var t domain.Tree
	if err := c.do(ctx, http.MethodGet, "/api/tree", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) GetNote(ctx context.Context, id domain.ID) (*domain.Note, error) {
	path, err := entityPath("note", id)
	if err != nil {
		return nil, err
	}
	var n domain.Note
	if err := c.do(ctx, http.MethodGet, path, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// NoteHTML returns the note's content rendered as HTML.
func (c *Client) NoteHTML(ctx context.Context, id domain.ID) (string, error) {
	path, err := entityPath("note", id)
	if err != nil {
		return "", err
	}
	var raw []byte
	if err := c.do(ctx, http.MethodGet, path+"/html", nil, &raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *Client) CreateNote(ctx context.Context, draft domain.NoteDraft) (*domain.Note, error) {
	var n domain.Note
	if err := c.do(ctx, http.MethodPost, "/api/notes", draft, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) UpdateNote(ctx context.Context, id domain.ID, patch domain.NotePatch) (*domain.Note, error) {
	path, err := entityPath("note", id)
	if err != nil {
		return nil, err
	}
	var n domain.Note
	if err := c.do(ctx, http.MethodPatch, path, patch, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) DeleteNote(ctx context.Context, id domain.ID) error {
	path, err := entityPath("note", id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) CreateFolder(ctx context.Context, draft domain.FolderDraft) (*domain.Folder, error) {
	var f domain.Folder
	if err := c.do(ctx, http.MethodPost, "/api/folders", draft, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) UpdateFolder(ctx context.Context, id domain.ID, patch domain.FolderPatch) (*domain.Folder, error) {
	path, err := entityPath("folder", id)
	if err != nil {
		return nil, err
	}
	var f domain.Folder
	if err := c.do(ctx, http.MethodPatch, path, patch, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) DeleteFolder(ctx context.Context, id domain.ID) error {
	path, err := entityPath("folder", id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

