package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stageline/internal/config"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/invoice"
	"stageline/internal/repo"
	"stageline/internal/staging"
)

// Request payloads. Money travels as decimal strings.

type CreateItemRequest struct {
	ID            *string  `json:"id,omitempty"`
	Name          string   `json:"name" minLength:"1"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	TotalQuantity int      `json:"total_quantity,omitempty" minimum:"0"`
	Location      string   `json:"location,omitempty"`
	UnitCost      string   `json:"unit_cost,omitempty" example:"129.99"`
	ImageURL      string   `json:"image_url,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type UpdateItemRequest struct {
	Name          *string   `json:"name,omitempty"`
	Category      *string   `json:"category,omitempty"`
	Tags          *[]string `json:"tags,omitempty"`
	TotalQuantity *int      `json:"total_quantity,omitempty" minimum:"0"`
	Location      *string   `json:"location,omitempty"`
	UnitCost      *string   `json:"unit_cost,omitempty"`
	ImageURL      *string   `json:"image_url,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
}

type CreateProjectRequest struct {
	ID           *string `json:"id,omitempty"`
	ClientName   string  `json:"client_name,omitempty"`
	ShortAddress string  `json:"short_address,omitempty"`
	FullAddress  string  `json:"full_address,omitempty"`
	JobLocation  string  `json:"job_location,omitempty"`
	StagingDate  string  `json:"staging_date,omitempty" example:"2024-05-01"`
	Notes        string  `json:"notes,omitempty"`
}

type UpdateProjectRequest struct {
	ClientName   *string `json:"client_name,omitempty"`
	ShortAddress *string `json:"short_address,omitempty"`
	FullAddress  *string `json:"full_address,omitempty"`
	JobLocation  *string `json:"job_location,omitempty"`
	// An empty staging_date clears it.
	StagingDate *string `json:"staging_date,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

type AssignItemRequest struct {
	ItemID   string `json:"item_id" minLength:"1"`
	Quantity int    `json:"quantity,omitempty" minimum:"1" maximum:"1000" default:"1"`
	Force    bool   `json:"force,omitempty"`
}

type RoomLineRequest struct {
	Room     string  `json:"room" minLength:"1"`
	Quantity int     `json:"quantity" minimum:"0"`
	Price    *string `json:"price,omitempty"`
}

type RoomPricingRequest struct {
	Rooms   []RoomLineRequest `json:"rooms"`
	Replace bool              `json:"replace,omitempty"`
	Force   bool              `json:"force,omitempty"`
}

// Responses

type QuantitiesResponse struct {
	Total     int `json:"total"`
	Assigned  int `json:"assigned"`
	InUse     int `json:"in_use"`
	Available int `json:"available"`
}

type ItemResponse struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Category        string             `json:"category,omitempty"`
	Tags            []string           `json:"tags"`
	TotalQuantity   int                `json:"total_quantity"`
	Location        string             `json:"location"`
	UnitCost        string             `json:"unit_cost"`
	TimesUsed       int                `json:"times_used"`
	ImageURL        string             `json:"image_url,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
	Quantities      QuantitiesResponse `json:"quantities"`
	Placement       domain.Location    `json:"placement"`
	DisplayLocation string             `json:"display_location"`
	OverAllocated   bool               `json:"over_allocated"`
}

type RoomPriceResponse struct {
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type ItemLineResponse struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name,omitempty"`
	Units    int    `json:"units"`
	UnitCost string `json:"unit_cost"`
	Missing  bool   `json:"missing,omitempty"`
}

type InvoiceResponse struct {
	Subtotal     string `json:"subtotal"`
	DeliveryFee  string `json:"delivery_fee"`
	PickupFee    string `json:"pickup_fee"`
	FeesSubtotal string `json:"fees_subtotal"`
	TaxRule      string `json:"tax_rule,omitempty"`
	TaxRate      string `json:"tax_rate"`
	Tax          string `json:"tax"`
	Total        string `json:"total"`
}

type ProjectResponse struct {
	ID           string                       `json:"id"`
	Status       string                       `json:"status" enum:"active,archived"`
	Label        string                       `json:"label"`
	ClientName   string                       `json:"client_name,omitempty"`
	ShortAddress string                       `json:"short_address,omitempty"`
	FullAddress  string                       `json:"full_address,omitempty"`
	JobLocation  string                       `json:"job_location,omitempty"`
	StagingDate  string                       `json:"staging_date,omitempty"`
	State        string                       `json:"state" enum:"pending,upcoming,staged,archived"`
	ContractEnd  string                       `json:"contract_end,omitempty"`
	ItemIDs      []string                     `json:"item_ids"`
	Items        []ItemLineResponse           `json:"items"`
	Units        int                          `json:"units"`
	RoomPricing  map[string]RoomPriceResponse `json:"room_pricing"`
	Invoice      InvoiceResponse              `json:"invoice"`
	Notes        string                       `json:"notes,omitempty"`
	CreatedAt    string                       `json:"created_at"`
	UpdatedAt    string                       `json:"updated_at"`
}

type DashboardResponse struct {
	Items              int            `json:"items"`
	Units              int            `json:"units"`
	UnitsInUse         int            `json:"units_in_use"`
	UnitsAvailable     int            `json:"units_available"`
	OverAllocatedItems []string       `json:"over_allocated_items"`
	Projects           map[string]int `json:"projects"`
	PipelineRevenue    string         `json:"pipeline_revenue"`
}

type EventResponse struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func itemResponse(v engine.ItemView) ItemResponse {
	it := v.Item
	return ItemResponse{
		ID:            it.ID,
		Name:          it.Name,
		Category:      it.Category,
		Tags:          nonNilSlice(it.Tags),
		TotalQuantity: it.TotalQuantity,
		Location:      it.Location,
		UnitCost:      it.UnitCost.StringFixed(2),
		TimesUsed:     it.TimesUsed,
		ImageURL:      it.ImageURL,
		Notes:         it.Notes,
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
		Quantities: QuantitiesResponse{
			Total:     v.Quantities.Total,
			Assigned:  v.Quantities.Assigned,
			InUse:     v.Quantities.InUse,
			Available: v.Quantities.Available,
		},
		Placement:       v.Location,
		DisplayLocation: v.Display,
		OverAllocated:   v.OverAllocated,
	}
}

func invoiceResponse(inv invoice.Invoice) InvoiceResponse {
	return InvoiceResponse{
		Subtotal:     inv.Subtotal.StringFixed(2),
		DeliveryFee:  inv.DeliveryFee.StringFixed(2),
		PickupFee:    inv.PickupFee.StringFixed(2),
		FeesSubtotal: inv.FeesSubtotal.StringFixed(2),
		TaxRule:      inv.TaxRule,
		TaxRate:      inv.TaxRate.String(),
		Tax:          inv.Tax.StringFixed(2),
		Total:        inv.Total.StringFixed(2),
	}
}

func projectResponse(v engine.ProjectView) ProjectResponse {
	p := v.Project
	res := ProjectResponse{
		ID:           p.ID,
		Status:       p.Status,
		Label:        v.Label,
		ClientName:   p.ClientName,
		ShortAddress: p.ShortAddress,
		FullAddress:  p.FullAddress,
		JobLocation:  p.JobLocation,
		State:        string(v.State),
		ItemIDs:      nonNilSlice(p.ItemIDs),
		Items:        make([]ItemLineResponse, 0, len(v.Items)),
		Units:        v.Units,
		RoomPricing:  map[string]RoomPriceResponse{},
		Invoice:      invoiceResponse(v.Invoice),
		Notes:        p.Notes,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.StagingDate != nil {
		res.StagingDate = p.StagingDate.Format(time.DateOnly)
	}
	if v.ContractEnd != nil {
		res.ContractEnd = v.ContractEnd.Format(time.DateOnly)
	}
	for _, line := range v.Items {
		res.Items = append(res.Items, ItemLineResponse{
			ItemID:   line.ItemID,
			Name:     line.Name,
			Units:    line.Units,
			UnitCost: line.UnitCost.StringFixed(2),
			Missing:  line.Missing,
		})
	}
	for room, rp := range p.RoomPricing {
		res.RoomPricing[room] = RoomPriceResponse{Price: rp.Price.StringFixed(2), Quantity: rp.Quantity}
	}
	return res
}

func dashboardResponse(d engine.Dashboard) DashboardResponse {
	res := DashboardResponse{
		Items:              d.Items,
		Units:              d.Units,
		UnitsInUse:         d.UnitsInUse,
		UnitsAvailable:     d.UnitsAvailable,
		OverAllocatedItems: nonNilSlice(d.OverAllocatedItems),
		Projects:           map[string]int{},
		PipelineRevenue:    d.PipelineRevenue.StringFixed(2),
	}
	for state, n := range d.Projects {
		res.Projects[string(state)] = n
	}
	return res
}

func settingsResponse(s config.Settings) map[string]string {
	return s.Flatten()
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func eventsResponse(page repo.EventPage) paginatedEvents {
	res := paginatedEvents{Items: make([]EventResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, evt := range page.Items {
		res.Items = append(res.Items, eventResponse(evt))
	}
	return res
}

// Request parsing helpers

func parseMoney(field string, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a decimal amount", engine.ErrInvalid, field)
	}
	return d, nil
}

func parseMoneyPtr(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := parseMoney(field, *raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseDay(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := staging.ParseDate(strings.TrimSpace(raw), time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", engine.ErrInvalid, field)
	}
	return &t, nil
}

func roomLines(in []RoomLineRequest) ([]engine.RoomLine, error) {
	out := make([]engine.RoomLine, 0, len(in))
	for _, l := range in {
		price, err := parseMoneyPtr("price", l.Price)
		if err != nil {
			return nil, err
		}
		out = append(out, engine.RoomLine{Room: l.Room, Quantity: l.Quantity, Price: price})
	}
	return out, nil
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
