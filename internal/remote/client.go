// Package remote is the terminal's HTTP client for the repository API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/repository"
)

// TokenFunc returns the bearer token of the signed-in user.
type TokenFunc func() (string, error)

// Client implements repository.Orders, repository.Catalog and
// repository.Identity against the repository API.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
}

var (
	_ repository.Orders   = (*Client)(nil)
	_ repository.Catalog  = (*Client)(nil)
	_ repository.Identity = (*Client)(nil)
)

func New(baseURL string, token TokenFunc) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		token:   token,
	}
}

// StatusError is a non-2xx response. It unwraps to the matching
// repository sentinel.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("repository: %d %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return repository.ErrNotFound
	case http.StatusConflict:
		return repository.ErrConflict
	case http.StatusUnauthorized, http.StatusForbidden:
		return repository.ErrUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return repository.ErrInvalid
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, authed bool, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.token == nil {
			return repository.ErrUnauthorized
		}
		tok, err := c.token()
		if err != nil {
			return fmt.Errorf("%w: %v", repository.ErrUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (repository.LoginResult, error) {
	var out repository.LoginResult
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/auth/login", false, body, &out)
	return out, err
}

func (c *Client) Branches(ctx context.Context) ([]repository.Branch, error) {
	var out []repository.Branch
	err := c.do(ctx, http.MethodGet, "/branches", false, nil, &out)
	return out, err
}

func (c *Client) Categories(ctx context.Context) ([]repository.Category, error) {
	var out []repository.Category
	err := c.do(ctx, http.MethodGet, "/categories", false, nil, &out)
	return out, err
}

func (c *Client) Menu(ctx context.Context, branchID uuid.UUID) ([]repository.MenuItem, error) {
	var out []repository.MenuItem
	err := c.do(ctx, http.MethodGet, "/menu?branch_id="+url.QueryEscape(branchID.String()), false, nil, &out)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, o repository.NewOrder) (repository.Order, error) {
	var out repository.Order
	if err := c.do(ctx, http.MethodPost, "/orders", true, o, &out); err != nil {
		return repository.Order{}, err
	}
	if out.ID == uuid.Nil {
		return repository.Order{}, errors.New("repository: create order returned no id")
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, id uuid.UUID) (repository.Order, error) {
	var out repository.Order
	err := c.do(ctx, http.MethodGet, "/orders/"+id.String(), true, nil, &out)
	return out, err
}

func (c *Client) UpdateOrder(ctx context.Context, id uuid.UUID, u repository.OrderUpdate) (repository.Order, error) {
	var out repository.Order
	err := c.do(ctx, http.MethodPut, "/orders/"+id.String(), true, u, &out)
	return out, err
}

func (c *Client) PayOrder(ctx context.Context, id uuid.UUID, p repository.Payment) (repository.Order, error) {
	var out repository.Order
	err := c.do(ctx, http.MethodPatch, "/orders/"+id.String()+"/pay", true, p, &out)
	return out, err
}

func (c *Client) CancelOrder(ctx context.Context, id uuid.UUID) (repository.Order, error) {
	var out repository.Order
	err := c.do(ctx, http.MethodPatch, "/orders/"+id.String()+"/cancel", true, nil, &out)
	return out, err
}

func (c *Client) ListUnpaid(ctx context.Context, branchID uuid.UUID) ([]repository.Order, error) {
	var out []repository.Order
	err := c.do(ctx, http.MethodGet, "/orders/unpaid?branch_id="+url.QueryEscape(branchID.String()), true, nil, &out)
	return out, err
}

func (c *Client) DailyStats(ctx context.Context, branchID uuid.UUID) (repository.DailyStats, error) {
	var out repository.DailyStats
	err := c.do(ctx, http.MethodGet, "/orders/stats/daily?branch_id="+url.QueryEscape(branchID.String()), true, nil, &out)
	return out, err
}
