package intake

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/notify"
	"github.com/runger/bikeshare/internal/orchestrator"
)

type fakeHandler struct {
	mu     sync.Mutex
	events []domain.RawEvent
	edits  []orchestrator.Edit
	result *orchestrator.Result
	edit   *orchestrator.EditResult
	err    error
}

func (f *fakeHandler) Handle(_ context.Context, raw domain.RawEvent) *orchestrator.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, raw)
	return f.result
}

func (f *fakeHandler) HandleEdit(_ context.Context, e orchestrator.Edit) (*orchestrator.EditResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, e)
	return f.edit, f.err
}

func startBufconn(t *testing.T, h Handler) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(h, nil)
	go func() { _ = srv.GRPC().Serve(lis) }()
	t.Cleanup(srv.GRPC().Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	c := NewClientWithConn(conn)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Submit(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{result: &orchestrator.Result{
		RunID:     "run-1",
		Operation: domain.OpCheckout,
		EventKey:  "abc",
		Phase:     orchestrator.PhaseReleased,
		Intent:    notify.Intent{Code: notify.CodeCheckoutOK, Message: "enjoy"},
	}}
	c := startBufconn(t, h)

	at := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	reply, err := c.Submit(context.Background(), domain.RawEvent{
		Operation:   "checkout",
		Responses:   []string{"a@inst.edu", "Trek100", "Yes", "Yes"},
		SourceRange: "Checkout!A5:D5",
		SubmittedAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, Reply{
		RunID:     "run-1",
		Operation: "checkout",
		Phase:     "released",
		Code:      notify.CodeCheckoutOK,
		EventKey:  "abc",
		Message:   "enjoy",
		OK:        true,
	}, reply)

	require.Len(t, h.events, 1)
	got := h.events[0]
	assert.Equal(t, "checkout", got.Operation)
	assert.Equal(t, []string{"a@inst.edu", "Trek100", "Yes", "Yes"}, got.Responses)
	assert.Equal(t, "Checkout!A5:D5", got.SourceRange)
	assert.True(t, at.Equal(got.SubmittedAt))
}

func TestClient_SubmitFailedRun(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{result: &orchestrator.Result{
		RunID:  "run-2",
		Phase:  orchestrator.PhaseLockTimeout,
		Intent: notify.Intent{Code: notify.CodeLockTimeout},
		Err:    errors.New("lock wait expired"),
	}}
	c := startBufconn(t, h)

	reply, err := c.Submit(context.Background(), domain.RawEvent{Operation: "return"})
	require.NoError(t, err, "a failed run is a normal reply")
	assert.False(t, reply.OK)
	assert.Equal(t, "lock_timeout", reply.Phase)
	assert.Equal(t, notify.CodeLockTimeout, reply.Code)
}

func TestClient_Edit(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{edit: &orchestrator.EditResult{Action: orchestrator.EditManualReturn}}
	c := startBufconn(t, h)

	action, err := c.Edit(context.Background(), orchestrator.Edit{Table: "Bikes", Row: 3, Column: 3, Value: "available"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.EditManualReturn, action)
	require.Len(t, h.edits, 1)
	assert.Equal(t, orchestrator.Edit{Table: "Bikes", Row: 3, Column: 3, Value: "available"}, h.edits[0])
}

func TestClient_EditErrors(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{err: errors.New("lock wait expired")}
	c := startBufconn(t, h)

	_, err := c.Edit(context.Background(), orchestrator.Edit{Table: "Bikes", Row: 3, Column: 3})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	_, err = c.Edit(context.Background(), orchestrator.Edit{Table: "Bikes", Row: 0, Column: 3})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClient_Healthy(t *testing.T) {
	t.Parallel()

	c := startBufconn(t, &fakeHandler{})
	assert.True(t, c.Healthy(context.Background()))
}

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      map[string]any
		wantErr bool
		want    domain.RawEvent
	}{
		{
			name: "minimal",
			in:   map[string]any{"operation": "return"},
			want: domain.RawEvent{Operation: "return"},
		},
		{
			name:    "missing operation",
			in:      map[string]any{"responses": []any{"x"}},
			wantErr: true,
		},
		{
			name:    "responses not a list",
			in:      map[string]any{"operation": "checkout", "responses": "x"},
			wantErr: true,
		},
		{
			name:    "bad timestamp",
			in:      map[string]any{"operation": "checkout", "submitted_at": "yesterday"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := structpb.NewStruct(tt.in)
			require.NoError(t, err)
			got, err := DecodeEvent(s)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListenAndServe_UnixSocket(t *testing.T) {
	t.Parallel()

	sock := filepath.Join(t.TempDir(), "run", "intake.sock")
	lis, err := Listen(sock)
	require.NoError(t, err)

	h := &fakeHandler{result: &orchestrator.Result{RunID: "run-3", Phase: orchestrator.PhaseReleased}}
	srv := NewServer(h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	c, err := NewClient(context.Background(), sock)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Submit(context.Background(), domain.RawEvent{Operation: "checkout"})
	require.NoError(t, err)
	assert.Equal(t, "run-3", reply.RunID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewClient_MissingSocket(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), filepath.Join(t.TempDir(), "absent.sock"))
	assert.Error(t, err)
}
