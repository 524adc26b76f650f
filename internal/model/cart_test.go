package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLineTotal(t *testing.T) {
	e := CartEntry{Price: decimal.RequireFromString("12.50"), Quantity: 3, DiscountAmount: decimal.RequireFromString("2.5")}
	assert.True(t, e.LineTotal().Equal(decimal.RequireFromString("35")))

	e.DiscountAmount = decimal.NewFromInt(100)
	assert.True(t, e.LineTotal().Equal(decimal.Zero))
}

func TestLineTotalNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(0, 1_000_000).Draw(t, "price_cents")
		qty := rapid.IntRange(0, 500).Draw(t, "qty")
		disc := rapid.Int64Range(0, 10_000_000).Draw(t, "discount_cents")

		e := CartEntry{
			Price:          decimal.New(cents, -2),
			Quantity:       qty,
			DiscountAmount: decimal.New(disc, -2),
		}
		total := e.LineTotal()
		if total.IsNegative() {
			t.Fatalf("negative total %s", total)
		}
		raw := decimal.New(cents*int64(qty)-disc, -2)
		if raw.IsPositive() && !total.Equal(raw) {
			t.Fatalf("total %s, want %s", total, raw)
		}
	})
}

func TestPendingActionEmitsBothTypeKeys(t *testing.T) {
	b, err := json.Marshal(PendingAction{ActionType: "create_item", Data: json.RawMessage(`{"barcode":"1"}`)})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "create_item", m["actionType"])
	assert.Equal(t, "create_item", m["type"])

	var back PendingAction
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "create_item", back.ActionType)
	assert.JSONEq(t, `{"barcode":"1"}`, string(back.Data))
}
