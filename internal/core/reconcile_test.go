package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/craftyard/craftyard/internal/deployer"
	"github.com/craftyard/craftyard/internal/model"
)

func newReconciler(db DB, engine deployer.Engine) (*Reconciler, *ServerService) {
	servers := newServerService(db, engine)
	r := NewReconciler(db, engine, servers.hub, servers, zerolog.Nop(), time.Minute)
	return r, servers
}

func sweepRow(id, containerID, status string) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = containerID
		*(dest[2].(*string)) = status
		return nil
	}
}

func TestReconciler_NoDrift(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, _ := newReconciler(db, engine)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(sweepRow("srv-1", "cid-1", model.StatusRunning)), nil)
	engine.On("InspectContainer", ctx, "cid-1").
		Return(&deployer.ContainerStatus{ID: "cid-1", State: "running", Running: true}, nil)

	err := r.reconcileOnce(ctx)
	require.NoError(t, err)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
	engine.AssertExpectations(t)
}

func TestReconciler_CrashedContainerMarksStopped(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, servers := newReconciler(db, engine)
	ctx := context.Background()

	conn := &recordingConn{}
	servers.hub.Subscribe("srv-1", model.ChannelDefault, "", conn)

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(sweepRow("srv-1", "cid-1", model.StatusRunning)), nil)
	engine.On("InspectContainer", ctx, "cid-1").
		Return(&deployer.ContainerStatus{ID: "cid-1", State: "exited", Running: false}, nil)
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	err := r.reconcileOnce(ctx)
	require.NoError(t, err)

	events := conn.received()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusUpdate, events[0].Type)
	assert.Equal(t, model.StatusStopped, events[0].Status)
	db.AssertExpectations(t)
}

func TestReconciler_ExternallyStartedMarksRunning(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, _ := newReconciler(db, engine)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(sweepRow("srv-1", "cid-1", model.StatusStopped)), nil)
	engine.On("InspectContainer", ctx, "cid-1").
		Return(&deployer.ContainerStatus{ID: "cid-1", State: "running", Running: true}, nil)
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	err := r.reconcileOnce(ctx)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReconciler_ErrorPromotedToRunning(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, _ := newReconciler(db, engine)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(sweepRow("srv-1", "cid-1", model.StatusError)), nil)
	engine.On("InspectContainer", ctx, "cid-1").
		Return(&deployer.ContainerStatus{ID: "cid-1", State: "running", Running: true}, nil)
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	err := r.reconcileOnce(ctx)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReconciler_ErrorWithStoppedContainerLeftAlone(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, _ := newReconciler(db, engine)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(sweepRow("srv-1", "cid-1", model.StatusError)), nil)
	engine.On("InspectContainer", ctx, "cid-1").
		Return(&deployer.ContainerStatus{ID: "cid-1", State: "created", Running: false}, nil)

	err := r.reconcileOnce(ctx)
	require.NoError(t, err)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_MissingContainerMarksError(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, _ := newReconciler(db, engine)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(sweepRow("srv-1", "cid-1", model.StatusRunning)), nil)
	engine.On("InspectContainer", ctx, "cid-1").
		Return(nil, notFoundError{msg: "no such container"})
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	err := r.reconcileOnce(ctx)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReconciler_MissingContainerOnErrorRecordIsNoop(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, _ := newReconciler(db, engine)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(sweepRow("srv-1", "cid-1", model.StatusError)), nil)
	engine.On("InspectContainer", ctx, "cid-1").
		Return(nil, notFoundError{msg: "no such container"})

	err := r.reconcileOnce(ctx)
	require.NoError(t, err)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_InspectFailureSkipsServer(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, _ := newReconciler(db, engine)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(
			sweepRow("srv-1", "cid-1", model.StatusRunning),
			sweepRow("srv-2", "cid-2", model.StatusRunning),
		), nil)
	engine.On("InspectContainer", ctx, "cid-1").Return(nil, errors.New("daemon busy"))
	engine.On("InspectContainer", ctx, "cid-2").
		Return(&deployer.ContainerStatus{ID: "cid-2", State: "running", Running: true}, nil)

	err := r.reconcileOnce(ctx)
	require.NoError(t, err)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
	engine.AssertExpectations(t)
}

func TestReconciler_SweepQueryFailure(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	r, _ := newReconciler(db, engine)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	err := r.reconcileOnce(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list servers for reconcile")
}

func TestReconciler_Run_StopsOnCancel(t *testing.T) {
	db := &mockDB{}
	engine := &mockEngine{}
	servers := newServerService(db, engine)
	r := NewReconciler(db, engine, servers.hub, servers, zerolog.Nop(), 10*time.Millisecond)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newEmptyMockRows(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop on cancel")
	}
}
