package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/craftyard/craftyard/internal/config"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/model"
)

func newServerHandler() *Server {
	return &Server{svc: nil, perms: core.NewPermissionService(nil), backups: nil}
}

func newServerService(db core.DB) *core.ServerService {
	return core.NewServerService(db, nil, testHub(), config.Config{}, zerolog.Nop())
}

// serverRow fills a full servers row scan with the given status.
func serverRow(id, status string, containerID *string) func(dest ...any) error {
	return func(dest ...any) error {
		now := time.Now()
		*(dest[0].(*string)) = id                 // ID
		*(dest[1].(*string)) = "alpha"            // Name
		*(dest[2].(*string)) = ""                 // Description
		*(dest[3].(*string)) = "vanilla"          // Flavor
		*(dest[4].(*string)) = "1.21.4"           // Version
		*(dest[5].(*int)) = 25565                 // GamePort
		*(dest[6].(*int)) = 35565                 // RconPort
		*(dest[7].(*int)) = 45565                 // QueryPort
		*(dest[8].(*string)) = "secret"           // RconPassword
		*(dest[9].(*int)) = 2048                  // MemoryMB
		*(dest[10].(**string)) = containerID      // ContainerID
		*(dest[11].(*string)) = "craftyard-alpha" // ContainerName
		*(dest[12].(*string)) = status            // Status
		*(dest[13].(*bool)) = true                // HasBeenStarted
		*(dest[14].(*time.Time)) = now            // CreatedAt
		*(dest[15].(*time.Time)) = now            // UpdatedAt
		*(dest[16].(**time.Time)) = nil           // LastStartedAt
		*(dest[17].(**time.Time)) = nil           // LastStoppedAt
		return nil
	}
}

// --- Create ---

func TestServerCreate_InvalidJSON(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/servers", "{bad json")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestServerCreate_MissingName(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/servers", map[string]any{
		"flavor": "vanilla",
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestServerCreate_BadVersion(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/servers", map[string]any{
		"name":    "alpha",
		"flavor":  "vanilla",
		"version": "not a version",
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestServerCreate_MemoryTooSmall(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/servers", map[string]any{
		"name":      "alpha",
		"flavor":    "vanilla",
		"memory_mb": 128,
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestServerCreate_ValidBody(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/servers", map[string]any{
		"name":   "alpha",
		"flavor": "vanilla",
	})

	func() {
		defer func() { recover() }()
		h.Create(rec, r)
	}()

	assert.NotEqual(t, http.StatusBadRequest, rec.Code)
}

// --- Get ---

func TestServerGet_EmptyID(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers/", nil)
	r = withChiURLParam(r, "id", "")

	h.Get(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "missing required ID")
}

func TestServerGet_NoPrincipal(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers/"+validID, nil)
	r = withChiURLParam(r, "id", validID)

	h.Get(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "missing API key")
}

func TestServerGet_ViewerWithoutGrant(t *testing.T) {
	db := &handlerMockDB{}
	h := &Server{svc: nil, perms: core.NewPermissionService(db)}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&handlerMockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers/"+validID, nil)
	r = withChiURLParam(r, "id", validID)
	r = withViewer(r)

	h.Get(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	db.AssertExpectations(t)
}

func TestServerGet_Success(t *testing.T) {
	db := &handlerMockDB{}
	h := &Server{svc: newServerService(db), perms: core.NewPermissionService(&handlerMockDB{})}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&handlerMockRow{scanFunc: serverRow(validID, model.StatusRunning, nil)}).Once()

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers/"+validID, nil)
	r = withChiURLParam(r, "id", validID)
	r = withAdmin(r)

	h.Get(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var inst model.ServerInstance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inst))
	assert.Equal(t, validID, inst.ID)
	assert.Equal(t, model.StatusRunning, inst.Status)
	// The RCON password must never serialize.
	assert.NotContains(t, rec.Body.String(), "secret")
	db.AssertExpectations(t)
}

func TestServerGet_NotFound(t *testing.T) {
	db := &handlerMockDB{}
	h := &Server{svc: newServerService(db), perms: core.NewPermissionService(&handlerMockDB{})}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&handlerMockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers/"+validID, nil)
	r = withChiURLParam(r, "id", validID)
	r = withAdmin(r)

	h.Get(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- List ---

func TestServerList_NoPrincipal(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers", nil)

	h.List(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServerList_AdminSeesAll(t *testing.T) {
	db := &handlerMockDB{}
	h := &Server{svc: newServerService(db), perms: core.NewPermissionService(&handlerMockDB{})}

	rows := newHandlerMockRows(serverRow(validID, model.StatusStopped, nil))
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil).Once()

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers", nil)
	r = withAdmin(r)

	h.List(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var servers []model.ServerInstance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servers))
	require.Len(t, servers, 1)
	assert.Equal(t, validID, servers[0].ID)
	db.AssertExpectations(t)
}

func TestServerList_ViewerScoped(t *testing.T) {
	permsDB := &handlerMockDB{}
	serversDB := &handlerMockDB{}
	h := &Server{svc: newServerService(serversDB), perms: core.NewPermissionService(permsDB)}

	grantRows := newHandlerMockRows(func(dest ...any) error {
		*(dest[0].(*string)) = validID
		return nil
	})
	permsDB.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(grantRows, nil).Once()

	serverRows := newHandlerMockRows(serverRow(validID, model.StatusRunning, nil))
	serversDB.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(serverRows, nil).Once()

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers", nil)
	r = withViewer(r)

	h.List(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var servers []model.ServerInstance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servers))
	require.Len(t, servers, 1)
	permsDB.AssertExpectations(t)
	serversDB.AssertExpectations(t)
}

func TestServerList_ViewerWithoutGrantsGetsEmptyList(t *testing.T) {
	permsDB := &handlerMockDB{}
	h := &Server{svc: newServerService(&handlerMockDB{}), perms: core.NewPermissionService(permsDB)}

	permsDB.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newHandlerMockRows(), nil).Once()

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers", nil)
	r = withViewer(r)

	h.List(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

// --- Update ---

func TestServerUpdate_EmptyID(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPut, "/servers/", map[string]any{"name": "beta"})
	r = withChiURLParam(r, "id", "")

	h.Update(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerUpdate_InvalidJSON(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPut, "/servers/"+validID, "{bad json")
	r = withChiURLParam(r, "id", validID)

	h.Update(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestServerUpdate_BadName(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPut, "/servers/"+validID, map[string]any{"name": "Not A Slug!"})
	r = withChiURLParam(r, "id", validID)

	h.Update(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

// --- Delete ---

func TestServerDelete_EmptyID(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodDelete, "/servers/", nil)
	r = withChiURLParam(r, "id", "")

	h.Delete(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerDelete_RunningConflict(t *testing.T) {
	db := &handlerMockDB{}
	h := &Server{svc: newServerService(db), perms: core.NewPermissionService(&handlerMockDB{})}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&handlerMockRow{scanFunc: serverRow(validID, model.StatusRunning, nil)}).Once()

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodDelete, "/servers/"+validID, nil)
	r = withChiURLParam(r, "id", validID)
	r = withAdmin(r)

	h.Delete(rec, r)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "must be stopped")
}

func TestServerDelete_Success(t *testing.T) {
	db := &handlerMockDB{}
	svc := newServerService(db)
	backups := core.NewBackupService(db, nil, nil, zerolog.Nop())
	h := &Server{svc: svc, perms: core.NewPermissionService(&handlerMockDB{}), backups: backups}

	// Handler pre-check and the service's own Get read the same row. No
	// container is attached, so the runtime is never touched.
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&handlerMockRow{scanFunc: serverRow(validID, model.StatusStopped, nil)}).Twice()
	// Backup purge, then the record delete.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 1"), nil).Twice()

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodDelete, "/servers/"+validID, nil)
	r = withChiURLParam(r, "id", validID)
	r = withAdmin(r)

	h.Delete(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	db.AssertExpectations(t)
}

// --- Lifecycle ---

func TestServerStart_EmptyID(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/servers//start", nil)
	r = withChiURLParam(r, "id", "")

	h.Start(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerStop_EmptyID(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/servers//stop", nil)
	r = withChiURLParam(r, "id", "")

	h.Stop(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerRestart_EmptyID(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/servers//restart", nil)
	r = withChiURLParam(r, "id", "")

	h.Restart(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerStart_ViewerWithoutGrant(t *testing.T) {
	db := &handlerMockDB{}
	h := &Server{svc: nil, perms: core.NewPermissionService(db)}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&handlerMockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/servers/"+validID+"/start", nil)
	r = withChiURLParam(r, "id", validID)
	r = withViewer(r)

	h.Start(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// --- Stats ---

func TestServerStats_EmptyID(t *testing.T) {
	h := newServerHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers//stats", nil)
	r = withChiURLParam(r, "id", "")

	h.Stats(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerStats_StoppedServerReportsZeros(t *testing.T) {
	db := &handlerMockDB{}
	h := &Server{svc: newServerService(db), perms: core.NewPermissionService(&handlerMockDB{})}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&handlerMockRow{scanFunc: serverRow(validID, model.StatusStopped, nil)}).Once()

	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/servers/"+validID+"/stats", nil)
	r = withChiURLParam(r, "id", validID)
	r = withAdmin(r)

	h.Stats(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.ServerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, model.StatusStopped, stats.Status)
	assert.Zero(t, stats.OnlinePlayers)
}
