package controlplane

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/blocksense-network/agentfs/pkg/config"
	"github.com/blocksense-network/agentfs/pkg/controlplane/wire"
	"github.com/blocksense-network/agentfs/pkg/core"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/lower"
	"github.com/stretchr/testify/require"
)

// singleConnListener hands out one pre-established net.Conn (one half of a
// net.Pipe), then blocks Accept until Close, so tests can drive Server.Serve
// without a real socket.
type singleConnListener struct {
	conn   net.Conn
	used   bool
	closed chan struct{}
}

func newSingleConnListener(conn net.Conn) *singleConnListener {
	return &singleConnListener{conn: conn, closed: make(chan struct{})}
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	if !l.used {
		l.used = true
		return l.conn, nil
	}
	<-l.closed
	return nil, net.ErrClosed
}

func (l *singleConnListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return l.conn.Close()
}

func (l *singleConnListener) Addr() net.Addr { return dummyAddr{} }

type dummyAddr struct{}

func (dummyAddr) Network() string { return "pipe" }
func (dummyAddr) String() string  { return "pipe" }

func newTestServer(t *testing.T) (net.Conn, *core.Instance) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/lower.txt", []byte("hello"), 0o644))

	inst, err := core.New(context.Background(), config.Default(), lower.NewHostFsProvider(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	srv := NewServer(inst)
	client, server := net.Pipe()
	listener := newSingleConnListener(server)

	go func() { _ = srv.Serve(context.Background(), listener) }()
	t.Cleanup(srv.Stop)

	return client, inst
}

// roundTrip sends req under op, decodes the response into resp, and returns
// the decode/dispatch error (an *ErrorResp wraps a server-reported failure).
func roundTrip(t *testing.T, conn net.Conn, op wire.OpCode, req, resp any) error {
	t.Helper()
	body, err := wire.EncodeEnvelope(op, req)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, wire.WriteFrame(conn, wire.Frame{Version: wire.Version, Body: body}))

	frame, err := wire.ReadFrame(conn)
	require.NoError(t, err)

	respOp, payload, err := wire.DecodeEnvelope(frame.Body)
	require.NoError(t, err)
	if respOp == OpError {
		var e ErrorResp
		require.NoError(t, wire.DecodePayload(payload, &e))
		return &e
	}
	require.Equal(t, op, respOp)
	return wire.DecodePayload(payload, resp)
}

func (e *ErrorResp) Error() string { return e.Message }

func TestSnapshotBranchBindRoundTrip(t *testing.T) {
	conn, inst := newTestServer(t)
	branch := inst.DefaultBranch().String()

	var createResp SnapshotCreateResp
	require.NoError(t, roundTrip(t, conn, OpSnapshotCreate, SnapshotCreateReq{Branch: branch, Label: "cp1"}, &createResp))
	require.NotEmpty(t, createResp.ID)

	var branchResp BranchCreateResp
	require.NoError(t, roundTrip(t, conn, OpBranchCreate, BranchCreateReq{FromSnapshot: createResp.ID, Label: "feature"}, &branchResp))
	require.NotEmpty(t, branchResp.ID)

	var bindResp BranchBindResp
	require.NoError(t, roundTrip(t, conn, OpBranchBind, BranchBindReq{BranchID: branchResp.ID, Pid: 7}, &bindResp))

	var listResp SnapshotListResp
	require.NoError(t, roundTrip(t, conn, OpSnapshotList, SnapshotListReq{}, &listResp))
	require.Len(t, listResp.Snapshots, 1)
	require.Equal(t, "cp1", listResp.Snapshots[0].Label)
}

func TestUnknownOpReturnsUnsupportedOp(t *testing.T) {
	conn, _ := newTestServer(t)
	var resp struct{}
	err := roundTrip(t, conn, wire.OpCode(9999), struct{}{}, &resp)
	require.Error(t, err)
	require.EqualValues(t, fserrors.UnsupportedOp, err.(*ErrorResp).Code)
}

func TestStatRoundTrip(t *testing.T) {
	conn, inst := newTestServer(t)
	branch := inst.DefaultBranch().String()

	var statResp StatResp
	require.NoError(t, roundTrip(t, conn, OpStat, StatReq{BranchID: branch, Path: "/lower.txt"}, &statResp))
	require.Equal(t, "file", statResp.Kind)
	require.EqualValues(t, 5, statResp.Size)
}

func TestFdOpenWriteThenPathOpRename(t *testing.T) {
	conn, inst := newTestServer(t)
	branch := inst.DefaultBranch().String()

	var openResp FdOpenResp
	require.NoError(t, roundTrip(t, conn, OpFdOpen, FdOpenReq{BranchID: branch, Path: "/new.txt", Flags: 0x1 | 0x40}, &openResp))
	require.NotEmpty(t, openResp.HandleID)

	var renameResp PathOpResp
	require.NoError(t, roundTrip(t, conn, OpPathOp, PathOpReq{BranchID: branch, Kind: "rename", Path: "/new.txt", NewPath: "/renamed.txt"}, &renameResp))

	var statResp StatResp
	require.NoError(t, roundTrip(t, conn, OpStat, StatReq{BranchID: branch, Path: "/renamed.txt"}, &statResp))
	require.Equal(t, "file", statResp.Kind)
}

func TestChmodAndStatReflectsMode(t *testing.T) {
	conn, inst := newTestServer(t)
	branch := inst.DefaultBranch().String()

	var openResp FdOpenResp
	require.NoError(t, roundTrip(t, conn, OpFdOpen, FdOpenReq{BranchID: branch, Path: "/mode.txt", Flags: 0x40}, &openResp))

	var chmodResp ChmodResp
	require.NoError(t, roundTrip(t, conn, OpChmod, ChmodReq{BranchID: branch, Path: "/mode.txt", Mode: 0o600}, &chmodResp))

	var statResp StatResp
	require.NoError(t, roundTrip(t, conn, OpStat, StatReq{BranchID: branch, Path: "/mode.txt"}, &statResp))
	require.EqualValues(t, 0o600, statResp.Mode)
}

func TestBadBranchIDReturnsBadRequest(t *testing.T) {
	conn, _ := newTestServer(t)
	var resp StatResp
	err := roundTrip(t, conn, OpStat, StatReq{BranchID: "not-a-uuid", Path: "/x"}, &resp)
	require.Error(t, err)
	require.EqualValues(t, fserrors.BadRequest, err.(*ErrorResp).Code)
}
