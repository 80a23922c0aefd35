package ipcserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncevo/syncengine/internal/eventbus"
	"github.com/syncevo/syncengine/internal/inforeq"
)

type fakeSession struct {
	id, peer string
	status   string
	attached []string
	detached []string
	aborted  bool
}

func (f *fakeSession) ID() string             { return f.id }
func (f *fakeSession) PeerName() string       { return f.peer }
func (f *fakeSession) Attach(clientID string) { f.attached = append(f.attached, clientID) }
func (f *fakeSession) Detach(clientID string) { f.detached = append(f.detached, clientID) }
func (f *fakeSession) SetConfig(update, temporary bool, configMap map[string]string) error {
	return nil
}
func (f *fakeSession) Status() string            { return f.status }
func (f *fakeSession) Error() int                { return 0 }
func (f *fakeSession) ProgressData() string      { return "" }
func (f *fakeSession) SourceProgress(string) int { return 0 }
func (f *fakeSession) Abort()                    { f.aborted = true }
func (f *fakeSession) Suspend()                  {}

type fakeRegistry struct {
	sessions map[string]SessionHandle
}

func (r *fakeRegistry) Get(id string) (SessionHandle, bool) {
	s, ok := r.sessions[id]
	return s, ok
}
func (r *fakeRegistry) All() []SessionHandle {
	out := make([]SessionHandle, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func newTestServer() (*Server, *fakeSession) {
	sess := &fakeSession{id: "s1", peer: "phone", status: "idle"}
	reg := &fakeRegistry{sessions: map[string]SessionHandle{"s1": sess}}
	bus := eventbus.New(8)
	deps := Deps{
		Bus:      bus,
		Sessions: reg,
		InfoReq:  inforeq.NewManager(noopBroadcaster{}),
	}
	return New(deps), sess
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(id, sessionPath, state, reqType string, params map[string]string) {}

func TestHandleSessionStatus(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "idle", body["status"])
}

func TestHandleSessionNotFound(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/bogus", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAttachDetach(t *testing.T) {
	srv, sess := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/attach", nil)
	req.Header.Set("X-Client-ID", "client-1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sess.attached, 1)
	assert.Equal(t, "client-1", sess.attached[0])

	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/detach", nil)
	req.Header.Set("X-Client-ID", "client-1")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sess.detached, 1)
}

func TestHandleAbort(t *testing.T) {
	srv, sess := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/abort", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sess.aborted)
}

func TestHandleSANValid(t *testing.T) {
	srv, _ := newTestServer()
	body := []byte(`<SAN><serverID>funambol</serverID><sync><syncMode>slow</syncMode><serverURI>card</serverURI></sync></SAN>`)
	req := httptest.NewRequest(http.MethodPost, "/v1/san", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "body=%s", w.Body.String())
}

func TestHandleSANInvalid(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/san", bytes.NewReader([]byte(`<SAN></SAN>`)))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing serverID should be rejected")
}

func TestRequestIDHeaderSetOnResponse(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/capabilities", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestInfoResponseHandler(t *testing.T) {
	srv, _ := newTestServer()
	mgr := srv.deps.InfoReq
	reqObj := mgr.Create("/session/s1", "password", nil, 0)

	body, _ := json.Marshal(map[string]any{"state": "working"})
	req := httptest.NewRequest(http.MethodPost, "/v1/inforeq/"+reqObj.ID, bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "body=%s", w.Body.String())
}
