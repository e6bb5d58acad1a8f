package gateway

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rahul/vibe/internal/agent"
	"github.com/rahul/vibe/internal/governance"
	"github.com/rahul/vibe/internal/sandbox"
	"github.com/rahul/vibe/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, p *scriptedProvider) (*httptest.Server, *sandbox.Manager) {
	t.Helper()
	sb := sandbox.NewManager(t.TempDir(), config.Default().Sandbox, governance.NewSandboxPolicy(), nil)
	sb.NewEnv = func(string) sandbox.Environment { return &idleEnv{} }
	t.Cleanup(sb.StopAll)

	srv := httptest.NewServer(NewServer("", newTestBuilder(p), sb, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, sb
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestTemplateEndpoint(t *testing.T) {
	p := &scriptedProvider{answer: "react", replies: []string{""}}
	srv, _ := newTestServer(t, p)

	resp := do(t, http.MethodPost, srv.URL+"/template", `{"prompt":"a todo app","provider":"gemini"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var tmpl agent.Template
	decode(t, resp, &tmpl)
	assert.Len(t, tmpl.Prompts, 2)
	require.Len(t, tmpl.UIPrompts, 1)
	assert.Contains(t, tmpl.UIPrompts[0], "boltArtifact")
}

func TestTemplateEndpointRejected(t *testing.T) {
	p := &scriptedProvider{answer: "angular", replies: []string{""}}
	srv, _ := newTestServer(t, p)

	resp := do(t, http.MethodPost, srv.URL+"/template", `{"prompt":"a todo app"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body errorBody
	decode(t, resp, &body)
	assert.Equal(t, "You cant access this", body.Message)
}

func TestChatEndpoint(t *testing.T) {
	p := &scriptedProvider{answer: "react", replies: []string{todoPlan}}
	srv, _ := newTestServer(t, p)

	resp := do(t, http.MethodPost, srv.URL+"/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Response string `json:"response"`
	}
	decode(t, resp, &body)
	assert.Equal(t, todoPlan, body.Response)
}

func TestBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedProvider{answer: "react", replies: []string{""}})

	resp := do(t, http.MethodPost, srv.URL+"/sessions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/sessions", `{"prompt":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodOptions, srv.URL+"/sessions", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestSessionLifecycle(t *testing.T) {
	p := &scriptedProvider{answer: "react", replies: []string{todoPlan, editPlan}}
	srv, _ := newTestServer(t, p)

	resp := do(t, http.MethodPost, srv.URL+"/sessions", `{"prompt":"a todo app"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess agent.Session
	decode(t, resp, &sess)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, agent.React, sess.Type)
	base := srv.URL + "/sessions/" + sess.ID

	resp = do(t, http.MethodGet, base+"/tree?format=text", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(text), "App.tsx")

	resp = do(t, http.MethodGet, base+"/mount", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m map[string]json.RawMessage
	decode(t, resp, &m)
	assert.Contains(t, m, "package.json")
	assert.Contains(t, m, "src")

	resp = do(t, http.MethodPost, base+"/chat", `{"message":"add a theme"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var chat struct {
		ID       string `json:"id"`
		NewSteps []struct {
			ID   int    `json:"id"`
			Path string `json:"path"`
		} `json:"new_steps"`
	}
	decode(t, resp, &chat)
	assert.Equal(t, sess.ID, chat.ID)
	require.Len(t, chat.NewSteps, 2)
	assert.Equal(t, sess.NextID, chat.NewSteps[0].ID)
	assert.Equal(t, "src/theme.ts", chat.NewSteps[1].Path)

	resp = do(t, http.MethodGet, base+"/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	data, _ := io.ReadAll(resp.Body)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "src/theme.ts")
	assert.Contains(t, names, "package.json")

	resp = do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEndpoints(t *testing.T) {
	p := &scriptedProvider{answer: "node", replies: []string{""}}
	srv, _ := newTestServer(t, p)

	resp := do(t, http.MethodPost, srv.URL+"/sessions", `{"prompt":"an api"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess agent.Session
	decode(t, resp, &sess)
	base := srv.URL + "/sessions/" + sess.ID

	resp = do(t, http.MethodGet, base+"/run", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/run", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/run", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/run", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st sandbox.Status
	decode(t, resp, &st)
	assert.NotEqual(t, sandbox.StateIdle, st.State)

	resp = do(t, http.MethodGet, base+"/preview", "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{agent.ErrClassificationRejected, http.StatusForbidden},
		{sandbox.ErrDenied, http.StatusForbidden},
		{agent.ErrSessionNotFound, http.StatusNotFound},
		{sandbox.ErrNotReady, http.StatusConflict},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, "%v", tt.err)
	}
}
