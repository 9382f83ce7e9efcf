// Package grpcserver exposes the standard gRPC health service, flipped to
// SERVING once a dataset is loaded, so orchestrators can probe readiness
// without speaking HTTP.
package grpcserver

import (
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"advodash/pkg/models"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "advodash.Dataset"

type Server struct {
	Addr string

	grpc   *grpc.Server
	health *health.Server
}

func NewServer(addr string) *Server {
	s := &Server{
		Addr:   addr,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// DatasetLoaded has the shape of a dataset.Cache OnLoad hook.
func (s *Server) DatasetLoaded(ds *models.Dataset) {
	if ds == nil {
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Run listens on Addr and blocks until Stop.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	log.Printf("[grpc] health service listening on %s", s.Addr)
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.grpc.Serve(ln)
}

// Stop reports NOT_SERVING to watchers and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
