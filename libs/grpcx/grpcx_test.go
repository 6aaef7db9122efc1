package grpcx

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestServerRequestIDInterceptorUsesIncomingMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-1"))
	var got string
	_, err := UnaryServerRequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		got = RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got != "req-1" {
		t.Fatalf("request id = %q", got)
	}
}

func TestServerRequestIDInterceptorGeneratesID(t *testing.T) {
	var got string
	_, _ = UnaryServerRequestIDInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		got = RequestIDFromContext(ctx)
		return nil, nil
	})
	if len(got) != 36 {
		t.Fatalf("generated id = %q", got)
	}
}

func TestClientRequestIDInterceptorForwardsGRPCID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "grpc-id")
	var sent []string
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		sent = md.Get(RequestIDMetadataKey)
		return nil
	}
	if err := UnaryClientRequestIDInterceptor()(ctx, "/svc/M", nil, nil, nil, invoker); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(sent) != 1 || sent[0] != "grpc-id" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestAccessLogInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithRequestID(context.Background(), "req-9")
	info := &grpc.UnaryServerInfo{FullMethod: "/shopqueue.v1.Scheduling/GetWaitEstimate"}

	_, _ = UnaryServerAccessLogInterceptor(logger)(ctx, nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	out := buf.String()
	for _, want := range []string{`"request_id":"req-9"`, `"code":"OK"`, "GetWaitEstimate"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %s missing %s", out, want)
		}
	}
}

func TestDialTimesOutOnUnreachableAddress(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	conn, err := Dial(context.Background(), addr, DialOptions{Timeout: 200 * time.Millisecond})
	if err == nil {
		_ = conn.Close()
		t.Fatalf("expected dial error")
	}
}
