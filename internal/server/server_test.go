package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/stagewise/internal/metrics"
	"github.com/KaramelBytes/stagewise/internal/session"
	"github.com/KaramelBytes/stagewise/internal/transport"
	"github.com/KaramelBytes/stagewise/internal/wizard"
)

func newTestServer(t *testing.T) *fiber.App {
	t.Helper()
	m := metrics.New()
	store := session.NewStore(time.Minute, func(id string) *wizard.Controller {
		return wizard.NewController(id, wizard.Options{Metrics: m})
	}, nil, m)
	srv := New(Options{Store: store, Metrics: m, CORSOrigins: []string{"http://localhost:3000"}})
	return srv.App()
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func jsonRequest(method, path string, v interface{}) *http.Request {
	var body io.Reader
	if v != nil {
		b, _ := json.Marshal(v)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	if v != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return req
}

func uploadRequest(t *testing.T, id, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/wizard/"+id+"/upload", &buf)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	return req
}

func decodeView(t *testing.T, body []byte) wizard.View {
	t.Helper()
	var v wizard.View
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func createSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, body := do(t, app, jsonRequest(http.MethodPost, "/api/wizard", nil))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	v := decodeView(t, body)
	require.NotEmpty(t, v.ID)
	assert.Equal(t, wizard.StageUpload, v.State.Stage)
	return v.ID
}

func TestWizardFlowEndToEnd(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)
	base := "/api/wizard/" + id

	resp, body := do(t, app, uploadRequest(t, id, "feedback.csv", "text,score\nslow refund,1\nfast payout,5\n"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	v := decodeView(t, body)
	assert.Equal(t, []string{"text", "score"}, v.State.Headers)
	assert.True(t, v.CanAdvance)

	resp, body = do(t, app, jsonRequest(http.MethodPost, base+"/next", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, wizard.StageSelectColumns, decodeView(t, body).State.Stage)

	resp, body = do(t, app, jsonRequest(http.MethodPut, base+"/columns", map[string]interface{}{"selectedColumns": []string{"text"}}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, app, jsonRequest(http.MethodPost, base+"/next", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	v = decodeView(t, body)
	require.Equal(t, wizard.StageConfigure, v.State.Stage)
	require.NotNil(t, v.State.Config)
	assert.Equal(t, wizard.FamilyClustering, v.State.Config.Kind)
	assert.NotEmpty(t, v.Options)

	resp, body = do(t, app, jsonRequest(http.MethodPut, base+"/config", map[string]interface{}{
		"mlType": "clustering", "algorithm": "kmeans", "numClusters": 5,
	}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, 5, *decodeView(t, body).State.Config.NumClusters)

	resp, body = do(t, app, jsonRequest(http.MethodPost, base+"/next", nil))
	require.Contains(t, []int{fiber.StatusOK, fiber.StatusAccepted}, resp.StatusCode, string(body))

	require.Eventually(t, func() bool {
		_, body := do(t, app, jsonRequest(http.MethodGet, base, nil))
		return decodeView(t, body).State.Stage == wizard.StageViewResults
	}, 3*time.Second, 20*time.Millisecond)

	_, body = do(t, app, jsonRequest(http.MethodGet, base, nil))
	v = decodeView(t, body)
	require.NotNil(t, v.State.Results)
	assert.Len(t, v.State.Results.Topics, 7)
	assert.Equal(t, 100, v.Progress.Percent)

	resp, body = do(t, app, jsonRequest(http.MethodGet, base+"/download/topics.csv", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.True(t, strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), "text/csv"))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "topics.csv")
	assert.True(t, strings.HasPrefix(string(body), "id,name,count,percentage\r\n"))

	resp, _ = do(t, app, jsonRequest(http.MethodGet, base+"/download/nope.csv", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body = do(t, app, jsonRequest(http.MethodPost, base+"/back", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	v = decodeView(t, body)
	assert.Equal(t, wizard.StageConfigure, v.State.Stage)
	assert.Nil(t, v.State.Results)
}

func TestUnknownSession(t *testing.T) {
	app := newTestServer(t)
	resp, body := do(t, app, jsonRequest(http.MethodGet, "/api/wizard/missing", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "session_not_found", e.Error)
	assert.Equal(t, fiber.StatusNotFound, e.Code)
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)

	resp, body := do(t, app, uploadRequest(t, id, "notes.pdf", "%PDF-1.4"))
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "unsupported_format", e.Error)
	assert.NotEmpty(t, e.Message)

	_, body = do(t, app, jsonRequest(http.MethodGet, "/api/wizard/"+id, nil))
	v := decodeView(t, body)
	assert.Equal(t, wizard.StageUpload, v.State.Stage)
	assert.Empty(t, v.State.SourceFileName)
}

func TestUploadRequiresFileField(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)
	resp, _ := do(t, app, jsonRequest(http.MethodPost, "/api/wizard/"+id+"/upload", map[string]string{"x": "y"}))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNextWithoutFileIsConflict(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)

	resp, body := do(t, app, jsonRequest(http.MethodPost, "/api/wizard/"+id+"/next", nil))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "validation", e.Error)
}

func TestColumnsValidation(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)
	base := "/api/wizard/" + id
	do(t, app, uploadRequest(t, id, "data.csv", "a,b\n1,2\n"))
	do(t, app, jsonRequest(http.MethodPost, base+"/next", nil))

	resp, _ := do(t, app, jsonRequest(http.MethodPut, base+"/columns", map[string]interface{}{}))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "selectedColumns key is required")

	resp, body := do(t, app, jsonRequest(http.MethodPut, base+"/columns", map[string]interface{}{"selectedColumns": []string{"zzz"}}))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "zzz")

	resp, body = do(t, app, jsonRequest(http.MethodPut, base+"/columns", map[string]interface{}{"selectedColumns": []string{}}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	v := decodeView(t, body)
	assert.False(t, v.CanAdvance)
	assert.Equal(t, "select at least one column", v.Reason)
}

func TestConfigFamilySwitch(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)
	base := "/api/wizard/" + id
	do(t, app, uploadRequest(t, id, "data.csv", "a,b\n1,2\n"))
	do(t, app, jsonRequest(http.MethodPost, base+"/next", nil))
	do(t, app, jsonRequest(http.MethodPut, base+"/columns", map[string]interface{}{"selectedColumns": []string{"a", "b"}}))
	do(t, app, jsonRequest(http.MethodPost, base+"/next", nil))

	resp, body := do(t, app, jsonRequest(http.MethodPut, base+"/config", map[string]string{"mlType": "regression"}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	cfg := decodeView(t, body).State.Config
	require.NotNil(t, cfg)
	assert.Equal(t, wizard.FamilyRegression, cfg.Kind)
	assert.Equal(t, wizard.AlgorithmLinear, cfg.Algorithm)

	resp, _ = do(t, app, jsonRequest(http.MethodPut, base+"/config", map[string]string{"mlType": "classification"}))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = do(t, app, jsonRequest(http.MethodPut, base+"/config", map[string]interface{}{
		"mlType": "clustering", "algorithm": "kmeans", "numClusters": 1,
	}))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestCancelWithoutSubmission(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)
	resp, body := do(t, app, jsonRequest(http.MethodPost, "/api/wizard/"+id+"/cancel", nil))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "no_submission")
}

func TestTransportAndHydrate(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)
	base := "/api/wizard/" + id
	do(t, app, uploadRequest(t, id, "data.csv", "a,b,c\n1,2,3\n"))
	do(t, app, jsonRequest(http.MethodPost, base+"/next", nil))
	do(t, app, jsonRequest(http.MethodPut, base+"/columns", map[string]interface{}{"selectedColumns": []string{"b"}}))

	resp, body := do(t, app, jsonRequest(http.MethodGet, base+"/transport?to=configure", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var tr transportResponse
	require.NoError(t, json.Unmarshal(body, &tr))
	assert.Equal(t, "configure", tr.Stage)
	assert.Equal(t, `["b"]`, tr.Payload[transport.KeySelectedColumns])

	resp, body = do(t, app, jsonRequest(http.MethodPost, "/api/wizard/hydrate", map[string]interface{}{
		"stage": tr.Stage, "payload": tr.Payload,
	}))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var hr hydrateResponse
	require.NoError(t, json.Unmarshal(body, &hr))
	assert.NotEqual(t, id, hr.ID)
	assert.Equal(t, wizard.StageConfigure, hr.State.Stage)
	assert.Equal(t, []string{"a", "b", "c"}, hr.State.Headers)
	assert.Equal(t, []string{"b"}, hr.State.SelectedColumns)
	assert.Empty(t, hr.Diagnostics)

	resp, _ = do(t, app, jsonRequest(http.MethodGet, base+"/transport?to=bogus", nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHydrateReportsMalformedValues(t *testing.T) {
	app := newTestServer(t)
	resp, body := do(t, app, jsonRequest(http.MethodPost, "/api/wizard/hydrate", map[string]interface{}{
		"stage":   "select-columns",
		"payload": map[string]string{transport.KeyHeaders: "not json"},
	}))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var hr hydrateResponse
	require.NoError(t, json.Unmarshal(body, &hr))
	assert.Equal(t, wizard.StageSelectColumns, hr.State.Stage)
	assert.Empty(t, hr.State.Headers)
	assert.NotEmpty(t, hr.Diagnostics)
}

func TestDeleteSession(t *testing.T) {
	app := newTestServer(t)
	id := createSession(t, app)
	resp, _ := do(t, app, jsonRequest(http.MethodDelete, "/api/wizard/"+id, nil))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, app, jsonRequest(http.MethodGet, "/api/wizard/"+id, nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestServer(t)
	createSession(t, app)

	resp, body := do(t, app, jsonRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	resp, body = do(t, app, jsonRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "stagewise_active_sessions 1")
}
