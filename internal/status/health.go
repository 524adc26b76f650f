package status

import (
	"github.com/fekuna/omnipos-offline/internal/connectivity"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const HealthService = "omnipos.offline.Sync"

// Health mirrors connectivity onto the gRPC health service: the process is
// always SERVING, the sync service only while the server is reachable.
type Health struct {
	*health.Server
}

func NewHealth() *Health {
	h := &Health{Server: health.NewServer()}
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *Health) Update(state connectivity.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == connectivity.Online {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus(HealthService, status)
}
