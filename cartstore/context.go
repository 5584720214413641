package cartstore

import (
	"context"
	"errors"
)

// ErrNoProvider is the panic value of FromContext when no cart was provided.
var ErrNoProvider = errors.New("cartstore: FromContext must be used within a NewContext scope")

type cartKey struct{}

// NewContext returns a child of ctx that provides c to FromContext.
func NewContext(ctx context.Context, c Cart) context.Context {
	return context.WithValue(ctx, cartKey{}, c)
}

// FromContext returns the cart provided by an enclosing NewContext. Calling
// it without one is a programming error and panics with ErrNoProvider.
func FromContext(ctx context.Context) Cart {
	c, ok := ctx.Value(cartKey{}).(Cart)
	if !ok || c == nil {
		panic(ErrNoProvider)
	}
	return c
}
