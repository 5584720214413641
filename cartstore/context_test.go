package cartstore_test

import (
	"context"
	"testing"

	"github.com/norun9/gomarketplace-cart/cartstore"
	"github.com/norun9/gomarketplace-cart/kvstore"
)

func TestFromContext_ReturnsProvidedCart(t *testing.T) {
	s := newStore(t, kvstore.NewLocalKVStore(quietLogger()), cartstore.Options{})
	ctx := cartstore.NewContext(context.Background(), s)

	if got := cartstore.FromContext(ctx); got != cartstore.Cart(s) {
		t.Fatalf("FromContext returned %v, want the provided store", got)
	}
}

func TestFromContext_PanicsOutsideProvider(t *testing.T) {
	defer func() {
		r := recover()
		if r != cartstore.ErrNoProvider {
			t.Fatalf("recovered %v, want ErrNoProvider", r)
		}
	}()
	cartstore.FromContext(context.Background())
	t.Fatal("FromContext did not panic")
}
