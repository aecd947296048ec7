package argussdk

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
)

// Client is a minimal Argus HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Mandate represents the API mandate model.
type Mandate struct {
	ID             string  `json:"id"`
	AgencyID       string  `json:"agency_id"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
	Status         string  `json:"status"`
	AssignmentType string  `json:"assignment_type"`
	Title          string  `json:"title"`
	City           string  `json:"city,omitempty"`
}

// Candidature represents an investigator's application to a mandate.
type Candidature struct {
	ID             string `json:"id"`
	MandateID      string `json:"mandate_id"`
	InvestigatorID string `json:"investigator_id"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
}

// Outcome wraps a workflow transition response.
type Outcome struct {
	Mandate  Mandate `json:"mandate"`
	Redirect string  `json:"redirect,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Notification represents a delivered notification.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	MandateID string `json:"mandate_id,omitempty"`
	Title     string `json:"title,omitempty"`
	ReadAt    string `json:"read_at,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Mandates lists mandates, optionally filtered by status.
func (c *Client) Mandates(ctx context.Context, status string) ([]Mandate, error) {
	endpoint := "mandates"
	if status != "" {
		endpoint = fmt.Sprintf("%s?status=%s", endpoint, url.QueryEscape(status))
	}
	var resp struct {
		Mandates []Mandate `json:"mandates"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Mandates, err
}

// Mandate fetches a single mandate.
func (c *Client) Mandate(ctx context.Context, id string) (Mandate, error) {
	var resp Mandate
	err := c.do(ctx, http.MethodGet, "mandates/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Candidatures lists the candidatures of a mandate.
func (c *Client) Candidatures(ctx context.Context, mandateID string) ([]Candidature, error) {
	var resp struct {
		Candidatures []Candidature `json:"candidatures"`
	}
	endpoint := fmt.Sprintf("mandates/%s/candidatures", url.PathEscape(mandateID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Candidatures, err
}

// AcceptCandidature accepts a candidature and assigns its investigator.
func (c *Client) AcceptCandidature(ctx context.Context, mandateID, candidatureID, investigatorID string) (Outcome, error) {
	body := map[string]any{"investigator_id": investigatorID}
	var resp Outcome
	endpoint := fmt.Sprintf("mandates/%s/candidatures/%s/accept", url.PathEscape(mandateID), url.PathEscape(candidatureID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RejectCandidature rejects a candidature.
func (c *Client) RejectCandidature(ctx context.Context, mandateID, candidatureID string) (Outcome, error) {
	var resp Outcome
	endpoint := fmt.Sprintf("mandates/%s/candidatures/%s/reject", url.PathEscape(mandateID), url.PathEscape(candidatureID))
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp, err
}

// UnrejectCandidature restores a rejected candidature.
func (c *Client) UnrejectCandidature(ctx context.Context, mandateID, candidatureID string) (Outcome, error) {
	var resp Outcome
	endpoint := fmt.Sprintf("mandates/%s/candidatures/%s/unreject", url.PathEscape(mandateID), url.PathEscape(candidatureID))
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp, err
}

// AssignInvestigator assigns an investigator directly to a mandate.
func (c *Client) AssignInvestigator(ctx context.Context, mandateID, investigatorID string) (Outcome, error) {
	body := map[string]any{"investigator_id": investigatorID}
	var resp Outcome
	endpoint := fmt.Sprintf("mandates/%s/assign", url.PathEscape(mandateID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// UnassignInvestigator removes the current assignee from a mandate.
func (c *Client) UnassignInvestigator(ctx context.Context, mandateID string) (Outcome, error) {
	var resp Outcome
	endpoint := fmt.Sprintf("mandates/%s/unassign", url.PathEscape(mandateID))
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp, err
}

// CompleteMandate completes a mandate.
func (c *Client) CompleteMandate(ctx context.Context, mandateID string) (Outcome, error) {
	var resp Outcome
	endpoint := fmt.Sprintf("mandates/%s/complete", url.PathEscape(mandateID))
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp, err
}

// ReopenMandate reopens a completed mandate.
func (c *Client) ReopenMandate(ctx context.Context, mandateID string) (Outcome, error) {
	var resp Outcome
	endpoint := fmt.Sprintf("mandates/%s/reopen", url.PathEscape(mandateID))
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp, err
}

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	endpoint := "notifications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Notifications, err
}

// Events returns audit events after the given cursor.
func (c *Client) Events(ctx context.Context, after int64, limit int) ([]Event, error) {
	endpoint := "events"
	sep := "?"
	if after > 0 {
		endpoint = fmt.Sprintf("%s%safter=%d", endpoint, sep, after)
		sep = "&"
	}
	if limit > 0 {
		endpoint = fmt.Sprintf("%s%slimit=%d", endpoint, sep, limit)
	}
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
