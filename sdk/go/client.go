package stagelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Stageline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id; servers without a JWT secret use it.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Quantities are the derived counts of an item.
type Quantities struct {
	Total     int `json:"total"`
	Assigned  int `json:"assigned"`
	InUse     int `json:"in_use"`
	Available int `json:"available"`
}

// Item represents the API inventory item model (partial).
type Item struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	TotalQuantity   int        `json:"total_quantity"`
	Location        string     `json:"location"`
	UnitCost        string     `json:"unit_cost"`
	TimesUsed       int        `json:"times_used"`
	Quantities      Quantities `json:"quantities"`
	DisplayLocation string     `json:"display_location"`
	OverAllocated   bool       `json:"over_allocated"`
}

// ItemInput creates an item. Money is a decimal string.
type ItemInput struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	TotalQuantity int      `json:"total_quantity,omitempty"`
	Location      string   `json:"location,omitempty"`
	UnitCost      string   `json:"unit_cost,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// ItemQuery filters ListItems.
type ItemQuery struct {
	Category      string
	Location      string
	AvailableOnly bool
}

// Invoice amounts are decimal strings with two places.
type Invoice struct {
	Subtotal     string `json:"subtotal"`
	DeliveryFee  string `json:"delivery_fee"`
	PickupFee    string `json:"pickup_fee"`
	FeesSubtotal string `json:"fees_subtotal"`
	TaxRule      string `json:"tax_rule"`
	TaxRate      string `json:"tax_rate"`
	Tax          string `json:"tax"`
	Total        string `json:"total"`
}

// Project represents the API project model (partial).
type Project struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Label       string   `json:"label"`
	ClientName  string   `json:"client_name"`
	FullAddress string   `json:"full_address"`
	StagingDate string   `json:"staging_date"`
	State       string   `json:"state"`
	ContractEnd string   `json:"contract_end"`
	ItemIDs     []string `json:"item_ids"`
	Units       int      `json:"units"`
	Invoice     Invoice  `json:"invoice"`
}

// ProjectInput creates a project. StagingDate is YYYY-MM-DD.
type ProjectInput struct {
	ID           string `json:"id,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
	ShortAddress string `json:"short_address,omitempty"`
	FullAddress  string `json:"full_address,omitempty"`
	JobLocation  string `json:"job_location,omitempty"`
	StagingDate  string `json:"staging_date,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// RoomLine prices one room. A nil Price uses the server's settings.
type RoomLine struct {
	Room     string  `json:"room"`
	Quantity int     `json:"quantity"`
	Price    *string `json:"price,omitempty"`
}

// Dashboard holds inventory and pipeline KPIs.
type Dashboard struct {
	Items              int            `json:"items"`
	Units              int            `json:"units"`
	UnitsInUse         int            `json:"units_in_use"`
	UnitsAvailable     int            `json:"units_available"`
	OverAllocatedItems []string       `json:"over_allocated_items"`
	Projects           map[string]int `json:"projects"`
	PipelineRevenue    string         `json:"pipeline_revenue"`
}

// Event represents a log entry.
type Event struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ListItems returns items with their availability.
func (c *Client) ListItems(ctx context.Context, q ItemQuery) ([]Item, error) {
	params := url.Values{}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if q.AvailableOnly {
		params.Set("available_only", "true")
	}
	var resp []Item
	err := c.do(ctx, http.MethodGet, withQuery("v0/items", params), nil, &resp)
	return resp, err
}

func (c *Client) CreateItem(ctx context.Context, in ItemInput) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, "v0/items", in, &resp)
	return resp, err
}

func (c *Client) GetItem(ctx context.Context, id string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodGet, "v0/items/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) CreateProject(ctx context.Context, in ProjectInput) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", in, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(id, ""), nil, &resp)
	return resp, err
}

// ArchiveProject archives a project, releasing its units.
func (c *Client) ArchiveProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath(id, "archive"), nil, &resp)
	return resp, err
}

// AssignItem adds qty units of an item to a project.
func (c *Client) AssignItem(ctx context.Context, projectID, itemID string, qty int, force bool) (Project, error) {
	body := map[string]any{
		"item_id":  itemID,
		"quantity": qty,
		"force":    force,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "items"), body, &resp)
	return resp, err
}

// UnassignItem removes up to qty of the most recently assigned units.
func (c *Client) UnassignItem(ctx context.Context, projectID, itemID string, qty int) (Project, error) {
	params := url.Values{}
	params.Set("item_id", itemID)
	params.Set("quantity", strconv.Itoa(qty))
	var resp Project
	err := c.do(ctx, http.MethodDelete, withQuery(c.projectPath(projectID, "items"), params), nil, &resp)
	return resp, err
}

func (c *Client) SetRoomPricing(ctx context.Context, projectID string, rooms []RoomLine, replace bool) (Project, error) {
	body := map[string]any{
		"rooms":   rooms,
		"replace": replace,
	}
	var resp Project
	err := c.do(ctx, http.MethodPut, c.projectPath(projectID, "room-pricing"), body, &resp)
	return resp, err
}

func (c *Client) Invoice(ctx context.Context, projectID string) (Invoice, error) {
	var resp Invoice
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "invoice"), nil, &resp)
	return resp, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "v0/dashboard", nil, &resp)
	return resp, err
}

// Settings returns the effective settings as flat key/value strings.
func (c *Client) Settings(ctx context.Context) (map[string]string, error) {
	var resp map[string]string
	err := c.do(ctx, http.MethodGet, "v0/settings", nil, &resp)
	return resp, err
}

// UpdateSettings merges overrides and returns the effective settings.
func (c *Client) UpdateSettings(ctx context.Context, overrides map[string]any) (map[string]string, error) {
	var resp map[string]string
	err := c.do(ctx, http.MethodPatch, "v0/settings", overrides, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("v0/events", params), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(id, p string) string {
	endpoint := "v0/projects/" + url.PathEscape(id)
	if p != "" {
		endpoint += "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func withQuery(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}
