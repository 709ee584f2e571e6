package cart

import (
	stdjson "encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/alferdousrana/Lifesheba/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode serializes items as the persisted JSON array. A nil slice is
// written as [] so readers never see null.
func Encode(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		items = []domain.LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal cart failed: %w", err)
	}
	return data, nil
}

// Decode parses a persisted cart. Only data that is not a JSON array is an
// error. Entries that cannot be read as a line or have no id are dropped,
// quantities are clamped to [1, MaxQuantity] and repeated ids are merged into
// the first occurrence, so the result always satisfies the cart invariants.
func Decode(data []byte) ([]domain.LineItem, error) {
	items, _, err := decode(data)
	return items, err
}

func decode(data []byte) (items []domain.LineItem, dropped int, err error) {
	var raw []stdjson.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	items = make([]domain.LineItem, 0, len(raw))
	index := make(map[domain.ProductID]int, len(raw))
	for _, entry := range raw {
		var item domain.LineItem
		if err := json.Unmarshal(entry, &item); err != nil || item.ID.IsZero() {
			dropped++
			continue
		}
		item.Quantity = min(max(item.Quantity, 1), MaxQuantity)
		if i, ok := index[item.ID]; ok {
			items[i].Quantity = min(items[i].Quantity+item.Quantity, MaxQuantity)
			continue
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	return items, dropped, nil
}
