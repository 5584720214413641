package cartstore

import (
	"context"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"pgregory.net/rapid"

	"github.com/norun9/gomarketplace-cart/kvstore"
)

func TestEncodeProducts_EmptyCart(t *testing.T) {
	for _, in := range [][]Product{nil, {}} {
		got, err := EncodeProducts(in)
		if err != nil || got != "[]" {
			t.Fatalf("EncodeProducts(%#v) = (%q, %v), want ([], nil)", in, got, err)
		}
	}
}

func TestEncodeProducts_FieldNames(t *testing.T) {
	got, err := EncodeProducts([]Product{{ID: "a", Title: "Apple", ImageURL: "a.png", Price: 1.5, Quantity: 2}})
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"id":"a","title":"Apple","image_url":"a.png","price":1.5,"quantity":2}]`
	if got != want {
		t.Fatalf("EncodeProducts = %s, want %s", got, want)
	}
}

func TestDecodeProducts_DropsInvalidEntries(t *testing.T) {
	raw := `[{"id":"a","quantity":1},{"id":"","quantity":4},{"id":"b","quantity":0},{"id":"a","quantity":9},{"id":"c","quantity":2}]`

	got, dropped, err := DecodeProducts(raw)
	if err != nil {
		t.Fatal(err)
	}
	want := []Product{{ID: "a", Quantity: 1}, {ID: "c", Quantity: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("DecodeProducts mismatch (-want +got):\n%s", diff)
	}
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
}

func TestDecodeProducts_RejectsGarbage(t *testing.T) {
	if _, _, err := DecodeProducts(`{"id":"a"}`); err == nil {
		t.Fatal("DecodeProducts accepted an object instead of an array")
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]Product{{ID: "a", Price: 2.5, Quantity: 2}, {ID: "b", Price: 10, Quantity: 1}})
	if got != (Summary{Count: 3, Total: 15}) {
		t.Fatalf("Summarize = %+v", got)
	}
}

func TestDecrementProduct_DoesNotAliasInput(t *testing.T) {
	in := []Product{{ID: "a", Quantity: 1}, {ID: "b", Quantity: 1}, {ID: "c", Quantity: 1}}
	before := cloneProducts(in)

	_, _ = decrementProduct(in, "a")
	_, _ = incrementProduct(in, "b")
	_ = addProduct(in, Product{ID: "c"})

	if diff := cmp.Diff(before, in); diff != "" {
		t.Fatalf("mutators modified their input (-before +after):\n%s", diff)
	}
}

func idGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z0-9]{1,8}`)
}

func productGen() *rapid.Generator[Product] {
	return rapid.Custom(func(t *rapid.T) Product {
		return Product{
			ID:       idGen().Draw(t, "id"),
			Title:    rapid.StringMatching(`[A-Za-z0-9 ]{0,20}`).Draw(t, "title"),
			ImageURL: rapid.StringMatching(`https://img\.example/[a-z]{0,12}\.png`).Draw(t, "image_url"),
			Price:    rapid.Float64Range(0, 10000).Draw(t, "price"),
			Quantity: rapid.IntRange(1, 100).Draw(t, "quantity"),
		}
	})
}

func cartGen() *rapid.Generator[[]Product] {
	return rapid.SliceOfNDistinct(productGen(), 0, 20, func(p Product) string { return p.ID })
}

func quietTestLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

// TestAddToCart_DistinctIDs_Property: adding distinct ids yields one entry
// per id with quantity 1, in call order, and the same record is persisted.
func TestAddToCart_DistinctIDs_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		products := cartGen().Draw(rt, "products")

		kv := kvstore.NewLocalKVStore(quietTestLogger())
		s := New(kv, Options{Logger: quietTestLogger()})
		defer s.Close(ctx)

		want := make([]Product, 0, len(products))
		for _, p := range products {
			if err := s.AddToCart(ctx, p); err != nil {
				rt.Fatalf("AddToCart: %v", err)
			}
			p.Quantity = 1
			want = append(want, p)
		}

		if diff := cmp.Diff(want, s.Products()); diff != "" {
			rt.Fatalf("products mismatch (-want +got):\n%s", diff)
		}
		if len(products) == 0 {
			return
		}
		raw, err := kv.Get(ctx, DefaultKey)
		if err != nil {
			rt.Fatalf("record missing: %v", err)
		}
		got, _, err := DecodeProducts(raw)
		if err != nil {
			rt.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			rt.Fatalf("persisted mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestAddToCart_RepeatedID_Property: adding the same id N times yields a
// single entry with quantity N.
func TestAddToCart_RepeatedID_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := productGen().Draw(rt, "product")
		n := rapid.IntRange(1, 50).Draw(rt, "n")

		var products []Product
		for i := 0; i < n; i++ {
			products = addProduct(products, p)
		}
		if len(products) != 1 || products[0].Quantity != n {
			rt.Fatalf("after %d adds got %+v", n, products)
		}
	})
}

// TestIncrement_Property: increment raises exactly one entry by one.
func TestIncrement_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cart := rapid.SliceOfNDistinct(productGen(), 1, 20, func(p Product) string { return p.ID }).Draw(rt, "cart")
		target := rapid.IntRange(0, len(cart)-1).Draw(rt, "target")

		next, ok := incrementProduct(cart, cart[target].ID)
		if !ok {
			rt.Fatal("increment of existing id reported a no-op")
		}
		want := cloneProducts(cart)
		want[target].Quantity++
		if diff := cmp.Diff(want, next); diff != "" {
			rt.Fatalf("increment mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestDecrement_Property: decrement lowers quantity by one, or removes the
// entry when its quantity is one.
func TestDecrement_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cart := rapid.SliceOfNDistinct(productGen(), 1, 20, func(p Product) string { return p.ID }).Draw(rt, "cart")
		target := rapid.IntRange(0, len(cart)-1).Draw(rt, "target")

		next, ok := decrementProduct(cart, cart[target].ID)
		if !ok {
			rt.Fatal("decrement of existing id reported a no-op")
		}

		var want []Product
		if cart[target].Quantity > 1 {
			want = cloneProducts(cart)
			want[target].Quantity--
		} else {
			want = append(want, cart[:target]...)
			want = append(want, cart[target+1:]...)
		}
		if diff := cmp.Diff(want, next, cmpEmptyAsNil()); diff != "" {
			rt.Fatalf("decrement mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestEncodeDecode_RoundTrip_Property: a valid cart survives the persisted
// record format unchanged.
func TestEncodeDecode_RoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cart := cartGen().Draw(rt, "cart")

		raw, err := EncodeProducts(cart)
		if err != nil {
			rt.Fatal(err)
		}
		got, dropped, err := DecodeProducts(raw)
		if err != nil || dropped != 0 {
			rt.Fatalf("DecodeProducts(%s): dropped=%d err=%v", raw, dropped, err)
		}
		if diff := cmp.Diff(cart, got, cmpEmptyAsNil()); diff != "" {
			rt.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func cmpEmptyAsNil() cmp.Option {
	return cmp.Comparer(func(a, b []Product) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	})
}
