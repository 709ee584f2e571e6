package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineItem_FlatJSON(t *testing.T) {
	item := NewLineItem(Product{
		ID:    IntID(7),
		Name:  "Rice",
		Price: decimal.NewFromInt(65),
	}, 3)

	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"name":"Rice","price":65,"quantity":3}`, string(data))

	var back LineItem
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, IntID(7), back.ID)
	assert.Equal(t, 3, back.Quantity)
	assert.Equal(t, "Rice", back.Name)
	assert.Nil(t, back.Extra)
}

func TestLineItem_BadQuantityReadsAsZero(t *testing.T) {
	var item LineItem
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"quantity":"two"}`), &item))
	assert.Equal(t, 0, item.Quantity)
}

func TestLineItem_BadDisplayFieldKeptVerbatim(t *testing.T) {
	in := `{"id":"B","quantity":1,"price":"N/A","name":5,"image":"/b.png"}`

	var item LineItem
	require.NoError(t, json.Unmarshal([]byte(in), &item))
	assert.Equal(t, StringID("B"), item.ID)
	assert.True(t, item.Price.IsZero())
	assert.Empty(t, item.Name)
	assert.Equal(t, "/b.png", item.Image)

	out, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestLineItem_BadIDIsAnError(t *testing.T) {
	var item LineItem
	assert.Error(t, json.Unmarshal([]byte(`{"id":{"a":1},"quantity":1}`), &item))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("increase")
	require.NoError(t, err)
	assert.Equal(t, Increase, d)

	d, err = ParseDirection("decrease")
	require.NoError(t, err)
	assert.Equal(t, Decrease, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestTotalQuantity(t *testing.T) {
	assert.Equal(t, 0, TotalQuantity(nil))
	assert.Equal(t, 5, TotalQuantity([]LineItem{
		{Product: Product{ID: IntID(1)}, Quantity: 2},
		{Product: Product{ID: StringID("1")}, Quantity: 3},
	}))
}
