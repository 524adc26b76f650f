package connectivity

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Prober performs one lightweight reachability check.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// HTTPProber checks the server's /api/health/ endpoint.
func HTTPProber(c healthChecker) Prober {
	return ProbeFunc(c.Health)
}

// GRPCProber asks a grpc health service whether service is SERVING.
type GRPCProber struct {
	client  healthpb.HealthClient
	service string
}

func NewGRPCProber(cc grpc.ClientConnInterface, service string) *GRPCProber {
	return &GRPCProber{client: healthpb.NewHealthClient(cc), service: service}
}

func (p *GRPCProber) Probe(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health status %s", resp.GetStatus())
	}
	return nil
}
