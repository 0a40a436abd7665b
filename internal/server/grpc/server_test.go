package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	cfgpkg "github.com/mishnit/pubsub/internal/config"
	"github.com/mishnit/pubsub/internal/runtime"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
}

func healthClient(t *testing.T, rt HealthChecker) (healthpb.HealthClient, context.Context) {
	t.Helper()
	srv := New(rt)
	t.Cleanup(srv.Close)
	d := dialer(srv.grpc)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	conn, err := grpc.DialContext(ctx, "bufnet", grpc.WithContextDialer(d), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn), ctx
}

func TestHealthOverGRPC(t *testing.T) {
	rt, err := runtime.Open(runtime.Options{Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	defer rt.Close()
	c, ctx := healthClient(t, rt)
	for _, svc := range []string{"", ServiceName} {
		res, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		if err != nil {
			t.Fatalf("check %q: %v", svc, err)
		}
		if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("check %q: got %v", svc, res.GetStatus())
		}
	}
}

type failing struct{}

func (failing) CheckHealth(context.Context) error { return errors.New("store closed") }

func TestHealthNotServing(t *testing.T) {
	c, ctx := healthClient(t, failing{})
	res, err := c.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("got %v", res.GetStatus())
	}
}

func TestHealthUnknownService(t *testing.T) {
	c, ctx := healthClient(t, failing{})
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}
