package cartstore

import (
	"encoding/json"
)

// Product is one cart line item. The JSON field names are the persisted
// record format and must not change.
type Product struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Summary aggregates a cart for display.
type Summary struct {
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// Summarize returns the item count and price total of products.
func Summarize(products []Product) Summary {
	var s Summary
	for _, p := range products {
		s.Count += p.Quantity
		s.Total += p.Price * float64(p.Quantity)
	}
	return s
}

// EncodeProducts serializes products into the persisted record format.
// A nil or empty cart encodes as "[]".
func EncodeProducts(products []Product) (string, error) {
	if products == nil {
		products = []Product{}
	}
	b, err := json.Marshal(products)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeProducts parses a persisted record. Entries with an empty id or a
// quantity below one are dropped, and for duplicate ids the first entry wins,
// so the result always satisfies the cart invariants. The second return
// value reports how many entries were dropped.
func DecodeProducts(raw string) ([]Product, int, error) {
	var decoded []Product
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, 0, err
	}

	out := make([]Product, 0, len(decoded))
	seen := make(map[string]struct{}, len(decoded))
	dropped := 0
	for _, p := range decoded {
		if _, dup := seen[p.ID]; p.ID == "" || p.Quantity < 1 || dup {
			dropped++
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, dropped, nil
}

func indexOf(products []Product, id string) int {
	for i, p := range products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func cloneProducts(products []Product) []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}

// addProduct returns a new slice with p added: appended with quantity 1 if
// its id is new, otherwise the existing entry's quantity is bumped and its
// other fields are left as they were.
func addProduct(products []Product, p Product) []Product {
	if i := indexOf(products, p.ID); i >= 0 {
		next := cloneProducts(products)
		next[i].Quantity++
		return next
	}
	next := make([]Product, len(products), len(products)+1)
	copy(next, products)
	p.Quantity = 1
	return append(next, p)
}

// incrementProduct bumps the quantity of id. A missing id is a no-op and
// reports false.
func incrementProduct(products []Product, id string) ([]Product, bool) {
	i := indexOf(products, id)
	if i < 0 {
		return products, false
	}
	next := cloneProducts(products)
	next[i].Quantity++
	return next, true
}

// decrementProduct lowers the quantity of id, removing the entry when it
// would reach zero. A missing id is a no-op and reports false.
func decrementProduct(products []Product, id string) ([]Product, bool) {
	i := indexOf(products, id)
	if i < 0 {
		return products, false
	}
	if products[i].Quantity > 1 {
		next := cloneProducts(products)
		next[i].Quantity--
		return next, true
	}
	next := make([]Product, 0, len(products)-1)
	next = append(next, products[:i]...)
	return append(next, products[i+1:]...), true
}
