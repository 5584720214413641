package services

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/norun9/gomarketplace-cart/kvstore"
)

// HealthCheckService implements the gRPC health check over the cart's
// key-value backend.
type HealthCheckService struct {
	kv kvstore.KVStore
	healthpb.UnimplementedHealthServer
}

// NewHealthCheckService constructor
func NewHealthCheckService(kv kvstore.KVStore) *HealthCheckService {
	return &HealthCheckService{kv: kv}
}

// Check reports SERVING while the key-value backend answers a ping.
func (h *HealthCheckService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if h.kv.Ping(ctx) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
}
