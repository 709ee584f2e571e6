package cart

import (
	stdjson "encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alferdousrana/Lifesheba/internal/domain"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestEncode_NilIsEmptyArray(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestCodec_RoundTrip(t *testing.T) {
	items := []domain.LineItem{
		{
			Product: domain.Product{
				ID:            domain.IntID(12),
				Name:          "Mustard Oil",
				Price:         decimal.RequireFromString("310.50"),
				DiscountPrice: decimal.NewNullDecimal(decimal.NewFromInt(290)),
				Image:         "https://cdn.example.com/oil.jpg",
				Extra:         map[string]stdjson.RawMessage{"unit": stdjson.RawMessage(`"1L"`)},
			},
			Quantity: 2,
		},
		{Product: domain.Product{ID: domain.StringID("gift-card")}, Quantity: 1},
		{Product: domain.Product{ID: domain.StringID("12"), Price: decimal.NewFromInt(5)}, Quantity: 7},
	}

	data, err := Encode(items)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)

	if diff := cmp.Diff(items, back, decimalComparer,
		cmp.AllowUnexported(domain.ProductID{}), cmpopts.IgnoreUnexported(domain.Product{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Normalizes(t *testing.T) {
	data := []byte(`[
		{"id":1,"quantity":2},
		{"quantity":5},
		{"id":null,"quantity":5},
		{"id":"x","quantity":0},
		{"id":1,"quantity":3},
		{"id":"y","quantity":-4}
	]`)

	items, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, domain.IntID(1), items[0].ID)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, domain.StringID("x"), items[1].ID)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, domain.StringID("y"), items[2].ID)
	assert.Equal(t, 1, items[2].Quantity)
}

func TestDecode_ClampsQuantities(t *testing.T) {
	data := []byte(`[
		{"id":"a","quantity":9223372036854775807},
		{"id":"b","quantity":9000},
		{"id":"b","quantity":9000}
	]`)

	items, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, MaxQuantity, items[0].Quantity)
	assert.Equal(t, MaxQuantity, items[1].Quantity)
	assert.Equal(t, 2*MaxQuantity, domain.TotalQuantity(items))
}

func TestDecode_KeepsGoodEntriesNextToBadOnes(t *testing.T) {
	data := []byte(`[
		{"id":"A","quantity":2,"price":100},
		{"id":"B","quantity":1,"price":"N/A"},
		{"id":{"a":1},"quantity":1},
		"stray",
		{"id":"C","quantity":"lots","price":5}
	]`)

	items, dropped, err := decode(data)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	require.Len(t, items, 3)
	assert.Equal(t, domain.StringID("A"), items[0].ID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, items[0].Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, domain.StringID("B"), items[1].ID)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, domain.StringID("C"), items[2].ID)
	assert.Equal(t, 1, items[2].Quantity)

	out, err := Encode(items)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":"A","quantity":2,"price":100},
		{"id":"B","quantity":1,"price":"N/A"},
		{"id":"C","quantity":1,"price":5}
	]`, string(out))
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `cart`},
		{name: "object", data: `{"id":1}`},
		{name: "truncated", data: `[{"id":1,"quantity":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDecode_NullIsEmpty(t *testing.T) {
	items, err := Decode([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, items)
}
