package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Setting keys understood by the settings store.
const (
	KeyDeliveryFee      = "deliveryFee"
	KeyPickupFee        = "pickupFee"
	KeyContractDuration = "contractDuration"
	// RoomKeyPrefix prefixes per-room price keys, e.g. "room.Living Room".
	RoomKeyPrefix = "room."
)

// Settings are the effective tunables: defaults with persisted overrides applied.
type Settings struct {
	DeliveryFee      decimal.Decimal
	PickupFee        decimal.Decimal
	ContractDuration int
	RoomPrices       map[string]decimal.Decimal
}

// Overrides is the flat JSON object persisted for settings.
type Overrides map[string]any

// Default returns the hard-coded settings.
func Default() Settings {
	var s Settings
	s.DeliveryFee = decimal.NewFromInt(400)
	s.PickupFee = decimal.NewFromInt(400)
	s.ContractDuration = 30
	s.RoomPrices = map[string]decimal.Decimal{}
	var doc struct {
		Rooms map[string]string `yaml:"rooms"`
	}
	if err := yaml.Unmarshal([]byte(defaultTemplate), &doc); err == nil {
		for room, price := range doc.Rooms {
			s.RoomPrices[room] = decimal.RequireFromString(price)
		}
	}
	return s
}

// Load merges overrides on top of the defaults.
func Load(o Overrides) (Settings, error) {
	s := Default()
	norm, err := o.Normalize()
	if err != nil {
		return Settings{}, err
	}
	for key, v := range norm {
		switch {
		case key == KeyDeliveryFee:
			s.DeliveryFee = decimal.RequireFromString(v.(string))
		case key == KeyPickupFee:
			s.PickupFee = decimal.RequireFromString(v.(string))
		case key == KeyContractDuration:
			s.ContractDuration = v.(int)
		case strings.HasPrefix(key, RoomKeyPrefix):
			s.RoomPrices[strings.TrimPrefix(key, RoomKeyPrefix)] = decimal.RequireFromString(v.(string))
		}
	}
	return s, nil
}

// Get returns the effective value of a setting key.
func (s Settings) Get(key string) (any, bool) {
	switch {
	case key == KeyDeliveryFee:
		return s.DeliveryFee, true
	case key == KeyPickupFee:
		return s.PickupFee, true
	case key == KeyContractDuration:
		return s.ContractDuration, true
	case strings.HasPrefix(key, RoomKeyPrefix):
		p, ok := s.RoomPrices[strings.TrimPrefix(key, RoomKeyPrefix)]
		return p, ok
	}
	return nil, false
}

// RoomPrice looks up a room price, ignoring case.
func (s Settings) RoomPrice(room string) (decimal.Decimal, bool) {
	if p, ok := s.RoomPrices[room]; ok {
		return p, true
	}
	for name, p := range s.RoomPrices {
		if strings.EqualFold(name, room) {
			return p, true
		}
	}
	return decimal.Zero, false
}

// Flatten renders the effective settings as the flat key/value form.
func (s Settings) Flatten() map[string]string {
	out := map[string]string{
		KeyDeliveryFee:      s.DeliveryFee.String(),
		KeyPickupFee:        s.PickupFee.String(),
		KeyContractDuration: strconv.Itoa(s.ContractDuration),
	}
	for room, p := range s.RoomPrices {
		out[RoomKeyPrefix+room] = p.String()
	}
	return out
}

// Keys returns the flattened keys in sorted order.
func (s Settings) Keys() []string {
	flat := s.Flatten()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set validates and stores a single override given as text.
func (o Overrides) Set(key, value string) error {
	v, err := normalizeValue(key, value)
	if err != nil {
		return err
	}
	o[key] = v
	return nil
}

// Normalize validates every override and returns canonical values:
// decimal strings for money and int days for contractDuration.
func (o Overrides) Normalize() (Overrides, error) {
	out := Overrides{}
	for key, raw := range o {
		v, err := normalizeValue(key, raw)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func normalizeValue(key string, raw any) (any, error) {
	switch {
	case key == KeyDeliveryFee, key == KeyPickupFee:
		d, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, err)
		}
		return d.String(), nil
	case strings.HasPrefix(key, RoomKeyPrefix):
		if strings.TrimSpace(strings.TrimPrefix(key, RoomKeyPrefix)) == "" {
			return nil, fmt.Errorf("setting %s: room label required", key)
		}
		d, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, err)
		}
		return d.String(), nil
	case key == KeyContractDuration:
		days, err := toDays(raw)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, err)
		}
		return days, nil
	}
	return nil, fmt.Errorf("unknown setting %s", key)
}

func toDecimal(raw any) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return d, fmt.Errorf("invalid amount %q", v)
		}
		d = parsed
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return d, fmt.Errorf("invalid amount %q", v)
		}
		d = parsed
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return d, fmt.Errorf("invalid amount %v", v)
		}
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case decimal.Decimal:
		d = v
	default:
		return d, fmt.Errorf("invalid amount type %T", raw)
	}
	if d.IsNegative() {
		return d, fmt.Errorf("amount must not be negative")
	}
	return d, nil
}

func toDays(raw any) (int, error) {
	var days int
	switch v := raw.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", v)
		}
		days = n
	case json.Number:
		n, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", v)
		}
		days = n
	case float64:
		if math.IsNaN(v) || v != math.Trunc(v) {
			return 0, fmt.Errorf("invalid day count %v", v)
		}
		days = int(v)
	case int:
		days = v
	case int64:
		days = int(v)
	default:
		return 0, fmt.Errorf("invalid day count type %T", raw)
	}
	if days < 0 {
		return 0, fmt.Errorf("day count must not be negative")
	}
	return days, nil
}

// FromJSON parses and validates a flat JSON overrides object.
func FromJSON(data []byte) (Overrides, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var o Overrides
	if err := dec.Decode(&o); err != nil {
		return nil, fmt.Errorf("invalid settings json: %w", err)
	}
	return o.Normalize()
}

// FromYAML parses and validates overrides from YAML. Room prices may be given
// either flat ("room.Office: 300") or nested under a "rooms" mapping.
func FromYAML(data []byte) (Overrides, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid settings yaml: %w", err)
	}
	o := Overrides{}
	for key, v := range raw {
		if key == "rooms" {
			rooms, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("settings.rooms must be a mapping")
			}
			for room, price := range rooms {
				o[RoomKeyPrefix+room] = price
			}
			continue
		}
		o[key] = v
	}
	return o.Normalize()
}

// FromFile reads overrides from a .json, .yml or .yaml file.
func FromFile(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return FromJSON(data)
	}
	return FromYAML(data)
}

const defaultTemplate = `rooms:
  Living Room: "600"
  Dining Room: "400"
  Family Room: "500"
  Primary Bedroom: "500"
  Bedroom: "350"
  Office: "300"
  Kitchen: "200"
  Outdoor: "400"
`
