package cartpb

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/norun9/gomarketplace-cart/cartstore"
)

// ErrMalformedProduct reports a Struct that cannot be read as a product.
var ErrMalformedProduct = errors.New("cartpb: malformed product")

// ProductToStruct encodes p with the persisted JSON field names.
func ProductToStruct(p cartstore.Product) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"id":        p.ID,
		"title":     p.Title,
		"image_url": p.ImageURL,
		"price":     p.Price,
		"quantity":  p.Quantity,
	})
}

// ProductFromStruct decodes a product. Absent or null fields are left zero;
// fields of the wrong kind are rejected with ErrMalformedProduct.
func ProductFromStruct(s *structpb.Struct) (cartstore.Product, error) {
	var (
		p   cartstore.Product
		err error
		qty float64
	)
	fields := s.GetFields()
	if p.ID, err = stringField(fields, "id"); err != nil {
		return p, err
	}
	if p.Title, err = stringField(fields, "title"); err != nil {
		return p, err
	}
	if p.ImageURL, err = stringField(fields, "image_url"); err != nil {
		return p, err
	}
	if p.Price, err = numberField(fields, "price"); err != nil {
		return p, err
	}
	if qty, err = numberField(fields, "quantity"); err != nil {
		return p, err
	}
	p.Quantity = int(math.Round(qty))
	return p, nil
}

// ProductsToList encodes a whole cart.
func ProductsToList(products []cartstore.Product) (*structpb.ListValue, error) {
	values := make([]*structpb.Value, 0, len(products))
	for _, p := range products {
		s, err := ProductToStruct(p)
		if err != nil {
			return nil, err
		}
		values = append(values, structpb.NewStructValue(s))
	}
	return &structpb.ListValue{Values: values}, nil
}

// ProductsFromList decodes a whole cart.
func ProductsFromList(l *structpb.ListValue) ([]cartstore.Product, error) {
	products := make([]cartstore.Product, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("%w: element %d is not a struct", ErrMalformedProduct, i)
		}
		p, err := ProductFromStruct(s)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func present(fields map[string]*structpb.Value, name string) (*structpb.Value, bool) {
	v, ok := fields[name]
	if !ok || v.GetKind() == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func stringField(fields map[string]*structpb.Value, name string) (string, error) {
	v, ok := present(fields, name)
	if !ok {
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string", ErrMalformedProduct, name)
	}
	return sv.StringValue, nil
}

func numberField(fields map[string]*structpb.Value, name string) (float64, error) {
	v, ok := present(fields, name)
	if !ok {
		return 0, nil
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: field %q must be a number", ErrMalformedProduct, name)
	}
	return nv.NumberValue, nil
}
