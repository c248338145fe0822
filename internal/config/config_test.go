package config

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := Default()
	require.True(t, s.DeliveryFee.Equal(decimal.NewFromInt(400)))
	require.True(t, s.PickupFee.Equal(decimal.NewFromInt(400)))
	require.Equal(t, 30, s.ContractDuration)
	price, ok := s.RoomPrice("living room")
	require.True(t, ok)
	require.True(t, price.Equal(decimal.NewFromInt(600)))
}

func TestLoadMergesOverridesOverDefaults(t *testing.T) {
	s, err := Load(Overrides{
		KeyDeliveryFee:           "250.50",
		KeyContractDuration:      float64(45),
		RoomKeyPrefix + "Den":    json.Number("275"),
		RoomKeyPrefix + "Office": 320,
	})
	require.NoError(t, err)
	require.Equal(t, "250.5", s.DeliveryFee.String())
	require.True(t, s.PickupFee.Equal(decimal.NewFromInt(400)), "untouched keys keep defaults")
	require.Equal(t, 45, s.ContractDuration)

	v, ok := s.Get(RoomKeyPrefix + "Den")
	require.True(t, ok)
	require.Equal(t, "275", v.(decimal.Decimal).String())
	v, ok = s.Get(RoomKeyPrefix + "Office")
	require.True(t, ok)
	require.Equal(t, "320", v.(decimal.Decimal).String())

	_, ok = s.Get("nope")
	require.False(t, ok)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := []Overrides{
		{KeyDeliveryFee: "abc"},
		{KeyPickupFee: math.NaN()},
		{KeyPickupFee: "-5"},
		{KeyContractDuration: 2.5},
		{KeyContractDuration: "-1"},
		{"taxRate": "0.1"},
		{RoomKeyPrefix: "100"},
	}
	for _, o := range cases {
		_, err := Load(o)
		require.Error(t, err, "%v", o)
	}
}

func TestOverridesSet(t *testing.T) {
	o := Overrides{}
	require.NoError(t, o.Set(KeyContractDuration, "14"))
	require.NoError(t, o.Set(RoomKeyPrefix+"Nursery", "150"))
	require.Error(t, o.Set(KeyDeliveryFee, "free"))
	require.Equal(t, 14, o[KeyContractDuration])
	require.Equal(t, "150", o[RoomKeyPrefix+"Nursery"])
	require.NotContains(t, o, KeyDeliveryFee)
}

func TestFromYAMLNestedRooms(t *testing.T) {
	o, err := FromYAML([]byte(`
deliveryFee: 350
contractDuration: 60
rooms:
  Living Room: 650
  Loft: "275.25"
`))
	require.NoError(t, err)
	s, err := Load(o)
	require.NoError(t, err)
	require.Equal(t, "350", s.DeliveryFee.String())
	require.Equal(t, 60, s.ContractDuration)
	require.Equal(t, "650", s.RoomPrices["Living Room"].String())
	require.Equal(t, "275.25", s.RoomPrices["Loft"].String())
}

func TestFromJSONRoundTripsThroughFlatten(t *testing.T) {
	o, err := FromJSON([]byte(`{"pickupFee": 125, "room.Patio": "90"}`))
	require.NoError(t, err)
	s, err := Load(o)
	require.NoError(t, err)
	flat := s.Flatten()
	require.Equal(t, "125", flat[KeyPickupFee])
	require.Equal(t, "90", flat[RoomKeyPrefix+"Patio"])
	require.Equal(t, "30", flat[KeyContractDuration])
	require.Contains(t, s.Keys(), KeyDeliveryFee)
}
