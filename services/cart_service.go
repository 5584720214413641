package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/norun9/gomarketplace-cart/cartpb"
	"github.com/norun9/gomarketplace-cart/cartstore"
)

// Store is the cart as the gRPC service needs it.
type Store interface {
	cartstore.Cart
	Clear(ctx context.Context) error
}

// CartServiceServer implements cartpb.CartServiceServer over a Store.
type CartServiceServer struct {
	store  Store
	tracer trace.Tracer
	log    logrus.FieldLogger
	cartpb.UnimplementedCartServiceServer
}

// NewCartServiceServer creates a server instance with the store injected.
func NewCartServiceServer(store Store, log logrus.FieldLogger) *CartServiceServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CartServiceServer{
		store:  store,
		tracer: otel.Tracer("cartservice"),
		log:    log,
	}
}

// ListProducts RPC implementation.
func (s *CartServiceServer) ListProducts(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	_, span := s.tracer.Start(ctx, "ListProducts")
	defer span.End()

	return s.cart(span)
}

// AddToCart RPC implementation.
func (s *CartServiceServer) AddToCart(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	ctx, span := s.tracer.Start(ctx, "AddToCart")
	defer span.End()

	p, err := cartpb.ProductFromStruct(req)
	if err != nil {
		return nil, s.fail(span, "AddToCart", err)
	}
	span.SetAttributes(attribute.String("app.product_id", p.ID))
	s.log.WithField("product_id", p.ID).Info("[AddToCart] received request")

	if err := s.store.AddToCart(ctx, p); err != nil && !s.persistFailed(ctx, span, "AddToCart", err) {
		return nil, s.fail(span, "AddToCart", err)
	}
	return s.cart(span)
}

// Increment RPC implementation.
func (s *CartServiceServer) Increment(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	ctx, span := s.tracer.Start(ctx, "Increment")
	defer span.End()

	id := req.GetValue()
	span.SetAttributes(attribute.String("app.product_id", id))
	if id == "" {
		return nil, s.fail(span, "Increment", cartstore.ErrInvalidProduct)
	}

	if err := s.store.Increment(ctx, id); err != nil && !s.persistFailed(ctx, span, "Increment", err) {
		return nil, s.fail(span, "Increment", err)
	}
	return s.cart(span)
}

// Decrement RPC implementation.
func (s *CartServiceServer) Decrement(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	ctx, span := s.tracer.Start(ctx, "Decrement")
	defer span.End()

	id := req.GetValue()
	span.SetAttributes(attribute.String("app.product_id", id))
	if id == "" {
		return nil, s.fail(span, "Decrement", cartstore.ErrInvalidProduct)
	}

	if err := s.store.Decrement(ctx, id); err != nil && !s.persistFailed(ctx, span, "Decrement", err) {
		return nil, s.fail(span, "Decrement", err)
	}
	return s.cart(span)
}

// Clear RPC implementation.
func (s *CartServiceServer) Clear(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	ctx, span := s.tracer.Start(ctx, "Clear")
	defer span.End()

	s.log.Info("[Clear] received request")
	if err := s.store.Clear(ctx); err != nil && !s.persistFailed(ctx, span, "Clear", err) {
		return nil, s.fail(span, "Clear", err)
	}
	return s.cart(span)
}

func (s *CartServiceServer) cart(span trace.Span) (*structpb.ListValue, error) {
	products := s.store.Products()
	span.SetAttributes(attribute.Int("app.cart.items", len(products)))

	l, err := cartpb.ProductsToList(products)
	if err != nil {
		return nil, s.fail(span, "encode cart", err)
	}
	return l, nil
}

// persistFailed reports whether err only says the record write failed. The
// change is already in the cart, so the call still succeeds and the failure
// goes to the caller in the PersistErrorTrailer trailer.
func (s *CartServiceServer) persistFailed(ctx context.Context, span trace.Span, op string, err error) bool {
	if !errors.Is(err, cartstore.ErrPersist) {
		return false
	}
	span.RecordError(err)
	s.log.WithError(err).Warnf("[%s] applied but not persisted", op)
	if terr := grpc.SetTrailer(ctx, metadata.Pairs(cartpb.PersistErrorTrailer, err.Error())); terr != nil {
		s.log.WithError(terr).Warnf("[%s] cannot set trailer", op)
	}
	return true
}

func (s *CartServiceServer) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())

	st := toStatus(op, err)
	if status.Code(st) != codes.InvalidArgument {
		s.log.WithError(err).Errorf("[%s] failed", op)
	}
	return st
}

func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, cartstore.ErrInvalidProduct), errors.Is(err, cartpb.ErrMalformedProduct):
		return status.Errorf(codes.InvalidArgument, "%s failed: %v", op, err)
	case errors.Is(err, cartstore.ErrClosed):
		return status.Errorf(codes.Unavailable, "%s failed: %v", op, err)
	case errors.Is(err, cartstore.ErrPersist):
		return status.Errorf(codes.DataLoss, "%s failed: %v", op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Errorf(codes.Internal, "%s failed: %v", op, err)
	}
}
