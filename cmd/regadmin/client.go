package main

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

	"ncc/pkg/platform/middleware/admin"
)

// client calls the operator API.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(baseURL, token string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/") + "/ops",
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status      int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *apiError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Description)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(admin.HeaderAdminToken, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type registration struct {
	RegistrationID string     `json:"registrationId"`
	UserID         string     `json:"userId"`
	Status         string     `json:"status"`
	PaymentStatus  string     `json:"paymentStatus"`
	SubmittedAt    *time.Time `json:"submittedAt"`
	PersonalInfo   struct {
		FullName    string `json:"fullName"`
		Email       string `json:"email"`
		Institution string `json:"institution"`
	} `json:"personalInfo"`
}

type listFilter struct {
	Status        string
	PaymentStatus string
	Limit         int
}

func (c *client) list(ctx context.Context, f listFilter) ([]registration, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.PaymentStatus != "" {
		q.Set("payment_status", f.PaymentStatus)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/registrations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Registrations []registration `json:"registrations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Registrations, nil
}

func (c *client) user(ctx context.Context, userID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &out)
	return out, err
}

type transition struct {
	RegistrationID string `json:"registrationId"`
	Axis           string `json:"axis"`
	From           string `json:"from"`
	To             string `json:"to"`
	Changed        bool   `json:"changed"`
}

func (c *client) setStatus(ctx context.Context, regID, status string) (*transition, error) {
	var out transition
	err := c.do(ctx, http.MethodPut, "/registrations/"+url.PathEscape(regID)+"/status", map[string]string{"status": status}, &out)
	return &out, err
}

func (c *client) setPaymentStatus(ctx context.Context, regID, status string) (*transition, error) {
	var out transition
	err := c.do(ctx, http.MethodPut, "/registrations/"+url.PathEscape(regID)+"/payment-status", map[string]string{"paymentStatus": status}, &out)
	return &out, err
}

func (c *client) setRole(ctx context.Context, userID, role string) (*transition, error) {
	var out transition
	err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(userID)+"/role", map[string]string{"role": role}, &out)
	return &out, err
}

type historyEntry struct {
	Action    string    `json:"action"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   string    `json:"actorId"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *client) history(ctx context.Context, regID string) ([]historyEntry, error) {
	var out struct {
		Entries []historyEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/registrations/"+url.PathEscape(regID)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}
