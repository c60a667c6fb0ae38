package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/multifs-backend/interfaces"
	"github.com/ruteri/multifs-backend/meta"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T, allowHidden bool) (http.Handler, *meta.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	manager, err := meta.NewManager(&meta.Config{
		RootDir: t.TempDir(),
		Log:     logger,
	})
	assert.NoError(t, err)

	handler := NewHandler(&HandlerConfig{
		Manager:     manager,
		Log:         logger,
		AllowHidden: allowHidden,
	})

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, handler)
	assert.NoError(t, err)

	return srv.getRouter(), manager
}

func doRequest(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeModel(t *testing.T, w *httptest.ResponseRecorder) interfaces.ContentModel {
	t.Helper()
	var model interfaces.ContentModel
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &model))
	return model
}

func registerMemDrive(t *testing.T, router http.Handler, uri string) interfaces.DriveID {
	t.Helper()
	w := doRequest(t, router, http.MethodPost, "/api/resources", []map[string]string{{"url": uri}})
	assert.Equal(t, http.StatusOK, w.Code)

	var resources []interfaces.Resource
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resources))
	assert.NotEmpty(t, resources)
	return resources[len(resources)-1].Drive
}

func TestHandler_ResourcesLifecycle(t *testing.T) {
	router, _ := newTestServer(t, false)

	// Empty before the first reconfiguration.
	w := doRequest(t, router, http.MethodGet, "/api/resources", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = doRequest(t, router, http.MethodPost, "/api/resources", []map[string]string{
		{"url": "mem://alpha", "name": "scratch"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resources []interfaces.Resource
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resources))
	assert.Len(t, resources, 1)
	assert.Equal(t, interfaces.DriveIDFor("mem://alpha"), resources[0].Drive)
	assert.Equal(t, "mem://alpha", resources[0].Spec.URL)
	assert.JSONEq(t, `"scratch"`, string(resources[0].Spec.Extra["name"]))

	// GET reflects the applied configuration.
	w = doRequest(t, router, http.MethodGet, "/api/resources", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var listed []interfaces.Resource
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Equal(t, resources, listed)
}

func TestHandler_ReconfigureFailureKeepsPrevious(t *testing.T) {
	router, _ := newTestServer(t, false)

	drive := registerMemDrive(t, router, "mem://alpha")

	// An unsupported scheme aborts the reconfiguration wholesale.
	w := doRequest(t, router, http.MethodPost, "/api/resources", []map[string]string{
		{"url": "mem://beta"},
		{"url": "gopher://nope"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/resources", nil)
	var resources []interfaces.Resource
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resources))
	assert.Len(t, resources, 1)
	assert.Equal(t, drive, resources[0].Drive)
}

func TestHandler_ReconfigureInvalidBody(t *testing.T) {
	router, _ := newTestServer(t, false)

	// Descriptor without a url field.
	w := doRequest(t, router, http.MethodPost, "/api/resources", []map[string]string{{"name": "no-url"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/resources", bytes.NewReader([]byte("not json")))
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestHandler_ContentsRoundTrip(t *testing.T) {
	router, _ := newTestServer(t, false)

	save := interfaces.ContentModel{
		Type:    interfaces.FileType,
		Format:  interfaces.TextFormat,
		Content: "hello",
	}

	w := doRequest(t, router, http.MethodPut, "/api/contents/dir/hello.txt", save)
	assert.Equal(t, http.StatusCreated, w.Code)
	saved := decodeModel(t, w)
	assert.Equal(t, "dir/hello.txt", saved.Path)

	w = doRequest(t, router, http.MethodGet, "/api/contents/dir/hello.txt", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	model := decodeModel(t, w)
	assert.Equal(t, "hello", model.Content)

	// content=0 omits the payload.
	w = doRequest(t, router, http.MethodGet, "/api/contents/dir/hello.txt?content=0", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	model = decodeModel(t, w)
	assert.Empty(t, model.Content)

	w = doRequest(t, router, http.MethodGet, "/api/contents/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ContentsOnRegisteredDrive(t *testing.T) {
	router, _ := newTestServer(t, false)
	drive := registerMemDrive(t, router, "mem://alpha")

	target := "/api/contents/" + drive.PrefixPath("doc.txt")
	w := doRequest(t, router, http.MethodPut, target, interfaces.ContentModel{
		Type:    interfaces.FileType,
		Content: "routed",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	saved := decodeModel(t, w)
	assert.Equal(t, drive.PrefixPath("doc.txt"), saved.Path)

	w = doRequest(t, router, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "routed", decodeModel(t, w).Content)

	// The default drive does not see the file.
	w = doRequest(t, router, http.MethodGet, "/api/contents/doc.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_UnknownDrive(t *testing.T) {
	router, _ := newTestServer(t, false)

	w := doRequest(t, router, http.MethodGet, "/api/contents/deadbeef:file.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Rename(t *testing.T) {
	router, _ := newTestServer(t, false)

	w := doRequest(t, router, http.MethodPut, "/api/contents/old.txt", interfaces.ContentModel{
		Type:    interfaces.FileType,
		Content: "x",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, router, http.MethodPatch, "/api/contents/old.txt", map[string]string{"path": "new.txt"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new.txt", decodeModel(t, w).Path)

	w = doRequest(t, router, http.MethodGet, "/api/contents/old.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Missing target path in body.
	w = doRequest(t, router, http.MethodPatch, "/api/contents/new.txt", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CrossDriveRename(t *testing.T) {
	router, _ := newTestServer(t, false)
	drive := registerMemDrive(t, router, "mem://alpha")

	w := doRequest(t, router, http.MethodPut, "/api/contents/doc.txt", interfaces.ContentModel{
		Type:    interfaces.FileType,
		Content: "x",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, router, http.MethodPatch, "/api/contents/doc.txt", map[string]string{
		"path": drive.PrefixPath("doc.txt"),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Source is untouched.
	w = doRequest(t, router, http.MethodGet, "/api/contents/doc.txt", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_RenameConflict(t *testing.T) {
	router, _ := newTestServer(t, false)

	for _, name := range []string{"a.txt", "b.txt"} {
		w := doRequest(t, router, http.MethodPut, "/api/contents/"+name, interfaces.ContentModel{
			Type:    interfaces.FileType,
			Content: name,
		})
		assert.Equal(t, http.StatusCreated, w.Code)
	}

	w := doRequest(t, router, http.MethodPatch, "/api/contents/a.txt", map[string]string{"path": "b.txt"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_Delete(t *testing.T) {
	router, _ := newTestServer(t, false)

	w := doRequest(t, router, http.MethodPut, "/api/contents/doomed.txt", interfaces.ContentModel{
		Type:    interfaces.FileType,
		Content: "x",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/api/contents/doomed.txt", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/api/contents/doomed.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_HiddenPaths(t *testing.T) {
	restricted, _ := newTestServer(t, false)
	permissive, _ := newTestServer(t, true)

	model := interfaces.ContentModel{Type: interfaces.FileType, Content: "secret"}

	w := doRequest(t, restricted, http.MethodPut, "/api/contents/.hidden/secret.txt", model)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(t, restricted, http.MethodGet, "/api/contents/.hidden/secret.txt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, permissive, http.MethodPut, "/api/contents/.hidden/secret.txt", model)
	assert.Equal(t, http.StatusCreated, w.Code)
	w = doRequest(t, permissive, http.MethodGet, "/api/contents/.hidden/secret.txt", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_CheckpointLifecycle(t *testing.T) {
	router, _ := newTestServer(t, false)

	w := doRequest(t, router, http.MethodPut, "/api/contents/doc.txt", interfaces.ContentModel{
		Type:    interfaces.FileType,
		Content: "v1",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/checkpoints/doc.txt", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	var cp interfaces.Checkpoint
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &cp))
	assert.NotEmpty(t, cp.ID)

	w = doRequest(t, router, http.MethodPut, "/api/contents/doc.txt", interfaces.ContentModel{
		Type:    interfaces.FileType,
		Content: "v2",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/checkpoints/doc.txt", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var checkpoints []interfaces.Checkpoint
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &checkpoints))
	assert.Len(t, checkpoints, 1)

	w = doRequest(t, router, http.MethodPut, "/api/checkpoints/"+cp.ID+"/doc.txt", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doRequest(t, router, http.MethodGet, "/api/contents/doc.txt", nil)
	assert.Equal(t, "v1", decodeModel(t, w).Content)

	w = doRequest(t, router, http.MethodDelete, "/api/checkpoints/"+cp.ID+"/doc.txt", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, router, http.MethodPut, "/api/checkpoints/"+cp.ID+"/doc.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_DefaultSpecsPrepended(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := meta.NewManager(&meta.Config{RootDir: t.TempDir(), Log: logger})
	assert.NoError(t, err)

	handler := NewHandler(&HandlerConfig{
		Manager:      manager,
		Log:          logger,
		DefaultSpecs: []interfaces.ResourceSpec{{URL: "mem://configured"}},
	})
	srv, err := New(&HTTPServerConfig{ListenAddr: "127.0.0.1:0", Log: logger}, handler)
	assert.NoError(t, err)
	router := srv.getRouter()

	w := doRequest(t, router, http.MethodPost, "/api/resources", []map[string]string{{"url": "mem://posted"}})
	assert.Equal(t, http.StatusOK, w.Code)

	var resources []interfaces.Resource
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resources))
	assert.Len(t, resources, 2)
	assert.Equal(t, "mem://configured", resources[0].Spec.URL)
	assert.Equal(t, "mem://posted", resources[1].Spec.URL)
}

func TestServer_HealthEndpoints(t *testing.T) {
	router, _ := newTestServer(t, false)

	w := doRequest(t, router, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/drain", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doRequest(t, router, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(t, router, http.MethodGet, "/undrain", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doRequest(t, router, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
