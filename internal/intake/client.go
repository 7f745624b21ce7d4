package intake

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/orchestrator"
)

// DialTimeout is the default bound for establishing a connection.
const DialTimeout = 2 * time.Second

// Dial connects to the daemon socket at sockPath.
func Dial(ctx context.Context, sockPath string) (*grpc.ClientConn, error) {
	if _, err := os.Stat(sockPath); err != nil {
		return nil, fmt.Errorf("socket not found: %s", sockPath)
	}

	// The dialer receives the target address, but we use sockPath directly
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", sockPath)
	}

	//nolint:staticcheck // Using deprecated DialContext for blocking connection behavior
	conn, err := grpc.DialContext(
		ctx,
		"passthrough:///"+sockPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return conn, nil
}

// Client calls the intake service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient dials sockPath within DialTimeout.
func NewClient(ctx context.Context, sockPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	conn, err := Dial(ctx, sockPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// NewClientWithConn creates a client with an existing connection.
func NewClientWithConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Submit sends one form submission and waits for the run to finish.
func (c *Client) Submit(ctx context.Context, raw domain.RawEvent) (Reply, error) {
	req, err := EncodeEvent(raw)
	if err != nil {
		return Reply{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, submitMethod, req, out); err != nil {
		return Reply{}, err
	}
	return decodeReply(out), nil
}

// Edit reports a manual edit and returns the action taken.
func (c *Client) Edit(ctx context.Context, e orchestrator.Edit) (orchestrator.EditAction, error) {
	req, err := EncodeEdit(e)
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, editMethod, req, out); err != nil {
		return "", err
	}
	return orchestrator.EditAction(out.GetFields()[fieldAction].GetStringValue()), nil
}

// Healthy reports whether the intake service answers SERVING.
func (c *Client) Healthy(ctx context.Context) bool {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}
