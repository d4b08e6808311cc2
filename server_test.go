package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/mmdatafocus/glrecon_backend/utils"
	"github.com/mmdatafocus/glrecon_backend/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const accessYAML = `
fallback: complement
assignments:
  boss:
    role: admin
    countries: ALL
    streams: ALL
  mateo:
    role: approver
    countries: [Mexico]
    streams: ALL
  rita:
    role: reviewer
    countries: ALL
    streams: ALL
`

type testServer struct {
	t      *testing.T
	app    *App
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("API_SECRET", "test-secret")

	access, err := models.ParseAccessTable([]byte(accessYAML))
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	settings := &config.Settings{MaxUploadBytes: 1 << 20, RateLimitMaxRequests: 1}
	app := &App{Settings: settings, Logger: logger, Access: access}
	svc := workflow.NewService(store.NewMemoryStore(), store.NewMemoryBlobStore(""), logger)
	svc.Now = func() time.Time { return time.Date(2026, time.August, 3, 10, 0, 0, 0, time.UTC) }
	app.SetService(svc)
	return &testServer{t: t, app: app, router: newRouter(app, nil)}
}

func (s *testServer) do(req *http.Request, user string) *httptest.ResponseRecorder {
	s.t.Helper()
	if user != "" {
		token, err := utils.JwtGenerate(user, "")
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(method, path, user string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, user)
}

func (s *testServer) upload(path, user, filename string, data []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(s.t, err)
	_, err = fw.Write(data)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req, user)
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Data
}

func recordsWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{{"GL Account", "Country"}, {"45", "Mexico"}, {"99", "Canada"}}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNoContent, s.json(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.json(http.MethodGet, "/readyz", "", nil).Code)

	s.app.svc.Store(nil)
	assert.Equal(t, http.StatusServiceUnavailable, s.json(http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.json(http.MethodGet, "/records", "boss", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.json(http.MethodGet, "/healthz", "", nil).Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.json(http.MethodGet, "/records", "", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, s.do(req, "").Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	hash, err := utils.HashPassword("s3cret")
	require.NoError(t, err)
	a := s.app.Access.Assignments["mateo"]
	a.PasswordHash = hash
	s.app.Access.Assignments["mateo"] = a

	w := s.json(http.MethodPost, "/login", "", gin.H{"username": "Mateo", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeData[map[string]any](t, w)
	assert.Equal(t, "mateo", out["username"])
	assert.Equal(t, "approver", out["role"])
	claims, err := utils.JwtValidate(out["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "mateo", claims.Username)

	w = s.json(http.MethodPost, "/login", "", gin.H{"username": "mateo", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.json(http.MethodPost, "/login", "", gin.H{"username": "stranger", "password": "s3cret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecordFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.upload("/admin/import/records", "mateo", "records.xlsx", recordsWorkbook(t))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.upload("/admin/import/records", "boss", "records.xlsx", recordsWorkbook(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decodeData[models.ImportSummary](t, w)
	assert.Equal(t, 2, summary.InsertedCount)
	assert.Equal(t, []string{"0000000099"}, summary.UnmatchedAccounts)

	w = s.upload("/admin/import/records", "boss", "records.xlsx", []byte("garbage"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	recs := decodeData[[]models.ReconciliationRecord](t, s.json(http.MethodGet, "/records", "mateo", nil))
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "Mexico", rec.Country)

	all := decodeData[[]models.ReconciliationRecord](t, s.json(http.MethodGet, "/records", "boss", nil))
	require.Len(t, all, 2)
	assert.Equal(t, http.StatusNotFound, s.json(http.MethodGet, "/records/"+all[1].ID, "mateo", nil).Code)

	w = s.json(http.MethodPatch, "/records/"+rec.ID+"/completion", "rita", gin.H{"completed": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.json(http.MethodPatch, "/records/"+rec.ID+"/review", "rita", gin.H{"reviewRequired": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusReviewRequired, decodeData[models.ReconciliationRecord](t, w).Status)

	w = s.json(http.MethodPatch, "/records/"+rec.ID+"/completion", "mateo", gin.H{"completed": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.json(http.MethodPatch, "/records/"+rec.ID+"/review", "mateo", gin.H{"reviewRequired": false, "version": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.json(http.MethodPatch, "/records/"+rec.ID+"/review", "mateo", gin.H{"reviewRequired": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.json(http.MethodPatch, "/records/"+rec.ID+"/completion", "mateo", gin.H{"completed": true, "completedAt": "03/08/2026"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusOnTime, decodeData[models.ReconciliationRecord](t, w).Status)

	w = s.json(http.MethodPatch, "/records/"+rec.ID+"/completion", "mateo", gin.H{"completed": true, "completedAt": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.json(http.MethodPost, "/records/"+rec.ID+"/comments", "mateo", gin.H{"text": "tied out to bank"})
	require.Equal(t, http.StatusCreated, w.Code)
	comments := decodeData[[]models.Comment](t, s.json(http.MethodGet, "/records/"+rec.ID+"/comments", "rita", nil))
	require.Len(t, comments, 1)
	assert.Equal(t, "mateo", comments[0].Author)

	w = s.upload("/records/"+rec.ID+"/attachments", "mateo", "support.pdf", []byte("%PDF-1.4\n%%EOF\n"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	atts := decodeData[[]models.Attachment](t, s.json(http.MethodGet, "/records/"+rec.ID+"/attachments", "mateo", nil))
	require.Len(t, atts, 1)
	assert.NotEmpty(t, atts[0].URL)

	detail := decodeData[models.RecordDetail](t, s.json(http.MethodGet, "/records/"+rec.ID, "mateo", nil))
	assert.Len(t, detail.Comments, 1)
	assert.Len(t, detail.Attachments, 1)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.upload("/admin/import/records", "boss", "records.xlsx", recordsWorkbook(t)).Code)

	w := s.json(http.MethodPut, "/admin/deadline-policy", "boss", gin.H{"workingDayOffset": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.json(http.MethodPut, "/admin/deadline-policy", "mateo", gin.H{"workingDayOffset": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.json(http.MethodPut, "/admin/deadline-policy", "boss", gin.H{"workingDayOffset": 5, "evaluationDay": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.json(http.MethodGet, "/admin/deadline-policy", "boss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currentDeadline":"2026-08-07"`)

	w = s.json(http.MethodPost, "/admin/sweeps/reset", "boss", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.json(http.MethodPost, "/admin/sweeps/reset", "boss", gin.H{"confirm": "RESET"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decodeData[workflow.SweepSummary](t, w).Total)

	w = s.json(http.MethodPost, "/admin/sweeps/recompute", "boss", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	log := decodeData[[]models.UploadLogEntry](t, s.json(http.MethodGet, "/admin/upload-log", "boss", nil))
	require.Len(t, log, 1)
	assert.Equal(t, models.UploadKindRecordImport, log[0].Kind)
	assert.Equal(t, http.StatusForbidden, s.json(http.MethodGet, "/admin/upload-log", "rita", nil).Code)
}
