package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: gateway returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// API performs the request/response calls: history, durability and roster.
type API struct {
	base   string
	token  string
	client *http.Client
}

// NewAPI creates a client for the gateway's HTTP endpoints.
func NewAPI(baseURL, token string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &API{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchHistory returns one page of a contact's conversation history.
func (a *API) FetchHistory(ctx context.Context, contactID string, page, limit int) (*HistoryPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out HistoryPage
	if err := a.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(contactID)+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMessage persists new content for a message.
func (a *API) UpdateMessage(ctx context.Context, id, content string) error {
	return a.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(id), updateBody{Content: content}, nil)
}

// DeleteMessage removes a message from the gateway's store.
func (a *API) DeleteMessage(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(id), nil, nil)
}

// FetchContacts returns one page of the roster.
func (a *API) FetchContacts(ctx context.Context, page, limit int) (*ContactsPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out ContactsPage
	if err := a.do(ctx, http.MethodGet, "/whatsapp/contacts?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PeerStatus asks whether the gateway is paired and connected to WhatsApp.
func (a *API) PeerStatus(ctx context.Context) (*PeerStatus, error) {
	var out PeerStatus
	if err := a.do(ctx, http.MethodGet, "/whatsapp/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
