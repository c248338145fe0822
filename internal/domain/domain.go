package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProjectActive   = "active"
	ProjectArchived = "archived"
)

type InventoryItem struct {
	ID            string          `json:"id" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Category      string          `json:"category,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	TotalQuantity int             `json:"total_quantity" validate:"gte=0"`
	Location      string          `json:"location"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	TimesUsed     int             `json:"times_used" validate:"gte=0"`
	ImageURL      string          `json:"image_url,omitempty" validate:"omitempty,url"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// RoomPrice is one line of a project's room pricing.
type RoomPrice struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Project is a client job assignment. ItemIDs is an ordered multiset: each
// occurrence of an id is one physical unit assigned to the project.
type Project struct {
	ID           string               `json:"id" validate:"required"`
	Status       string               `json:"status" validate:"oneof=active archived"`
	ClientName   string               `json:"client_name,omitempty"`
	ShortAddress string               `json:"short_address,omitempty"`
	FullAddress  string               `json:"full_address,omitempty"`
	JobLocation  string               `json:"job_location,omitempty"`
	StagingDate  *time.Time           `json:"staging_date,omitempty"`
	ItemIDs      []string             `json:"item_ids"`
	RoomPricing  map[string]RoomPrice `json:"room_pricing,omitempty"`
	Notes        string               `json:"notes,omitempty"`
	CreatedAt    string               `json:"created_at"`
	UpdatedAt    string               `json:"updated_at"`
}

func (p Project) Active() bool { return p.Status == ProjectActive }

// Histogram returns the per-item unit counts of the project's assignment multiset.
func (p Project) Histogram() Histogram {
	return NewHistogram(p.ItemIDs)
}

// Label is the display name of a project: client name, then short address,
// then job location.
func (p Project) Label() string {
	switch {
	case p.ClientName != "":
		return p.ClientName
	case p.ShortAddress != "":
		return p.ShortAddress
	case p.JobLocation != "":
		return p.JobLocation
	}
	return "Unknown Project"
}

// TaxAddress is the text used to resolve a project's tax rate.
func (p Project) TaxAddress() string {
	if p.FullAddress != "" {
		return p.FullAddress
	}
	return p.JobLocation
}

// StagingState is the lifecycle state of a project relative to today.
type StagingState string

const (
	StagingPending  StagingState = "pending"
	StagingUpcoming StagingState = "upcoming"
	StagingStaged   StagingState = "staged"
	StagingArchived StagingState = "archived"
)

type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
