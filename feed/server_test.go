package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justapithecus/tankreplay/ipc"
	"github.com/justapithecus/tankreplay/log"
	"github.com/justapithecus/tankreplay/metrics"
	"github.com/justapithecus/tankreplay/store"
	"github.com/justapithecus/tankreplay/types"
)

var testMeta = types.SessionMeta{SessionID: "s-1", Source: "http://localhost:8000"}

func appendStep(t *testing.T, state *store.State, objects map[string]types.ObjectState) {
	t.Helper()
	_ = state.Update(func(w *store.Writer) error {
		idx := w.Append(objects, nil)
		for id := range objects {
			w.MarkCreated(id, idx)
		}
		return nil
	})
}

func finish(state *store.State, winners ...string) {
	_ = state.Update(func(w *store.Writer) error {
		w.Finish(types.Outcome{Winners: winners})
		return nil
	})
}

func newTestServer(t *testing.T, state *store.State) (*Server, *httptest.Server) {
	t.Helper()
	collector := metrics.NewCollector(testMeta.SessionID, "http", "skip")
	s := NewServer(state, testMeta, collector, log.NewNopLogger(), Config{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Status(t *testing.T) {
	state := store.New()
	appendStep(t, state, map[string]types.ObjectState{"tank-1": {"hp": 100.0}, "tank-2": {"hp": 80.0}})
	finish(state, "1")
	_, srv := newTestServer(t, state)

	var got StatusResponse
	if code := getJSON(t, srv.URL+"/api/status", &got); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if got.SessionID != "s-1" || got.Objects != 2 {
		t.Errorf("status = %+v", got)
	}
	if !got.Progress.Finished || got.Progress.Phase != types.PhaseFinished || got.Progress.Timesteps != 1 {
		t.Errorf("progress = %+v", got.Progress)
	}
	if got.Outcome == nil || len(got.Outcome.Winners) != 1 || got.Outcome.Winners[0] != "1" {
		t.Errorf("outcome = %+v", got.Outcome)
	}
}

func TestServer_Timesteps(t *testing.T) {
	state := store.New()
	appendStep(t, state, map[string]types.ObjectState{"tank-1": {"hp": 100.0}})
	appendStep(t, state, map[string]types.ObjectState{"tank-1": {"hp": 90.0}})
	_, srv := newTestServer(t, state)

	tests := []struct {
		path     string
		wantCode int
		wantHP   float64
	}{
		{"/api/timesteps/0", http.StatusOK, 100},
		{"/api/timesteps/1", http.StatusOK, 90},
		{"/api/timesteps/latest", http.StatusOK, 90},
		{"/api/timesteps/2", http.StatusNotFound, 0},
		{"/api/timesteps/-1", http.StatusBadRequest, 0},
		{"/api/timesteps/abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var ts types.Timestep
			code := getJSON(t, srv.URL+tt.path, &ts)
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d", code, tt.wantCode)
			}
			if code != http.StatusOK {
				return
			}
			if hp := ts.Objects["tank-1"]["hp"]; hp != tt.wantHP {
				t.Errorf("tank-1 hp = %v, want %v", hp, tt.wantHP)
			}
		})
	}
}

func TestServer_MapAndRoster(t *testing.T) {
	state := store.New()
	_, srv := newTestServer(t, state)

	if code := getJSON(t, srv.URL+"/api/map", nil); code != http.StatusNotFound {
		t.Errorf("map before receipt = %d, want 404", code)
	}
	if code := getJSON(t, srv.URL+"/api/roster", nil); code != http.StatusNotFound {
		t.Errorf("roster before receipt = %d, want 404", code)
	}

	_ = state.Update(func(w *store.Writer) error {
		w.SetMap(types.MapDefinition{Header: "2 1", Rows: []string{".#"}})
		w.SetRoster(types.Roster{Participants: []types.Participant{{ID: "1", Name: "alice"}}})
		return nil
	})

	var m types.MapDefinition
	if code := getJSON(t, srv.URL+"/api/map", &m); code != http.StatusOK || m.Header != "2 1" {
		t.Errorf("map = %d %+v", code, m)
	}
	var r types.Roster
	if code := getJSON(t, srv.URL+"/api/roster", &r); code != http.StatusOK || r.Name("1") != "alice" {
		t.Errorf("roster = %d %+v", code, r)
	}
}

func TestServer_Lifecycle(t *testing.T) {
	state := store.New()
	appendStep(t, state, map[string]types.ObjectState{"tank-1": {}, "shell-1": {}})
	_ = state.Update(func(w *store.Writer) error {
		idx := w.Append(map[string]types.ObjectState{"tank-1": {}}, nil)
		w.MarkDeleted("shell-1", idx)
		return nil
	})
	_, srv := newTestServer(t, state)

	var all []types.Lifecycle
	if code := getJSON(t, srv.URL+"/api/lifecycle", &all); code != http.StatusOK || len(all) != 2 {
		t.Fatalf("lifecycles = %d %+v", code, all)
	}

	var lc types.Lifecycle
	if code := getJSON(t, srv.URL+"/api/lifecycle/shell-1", &lc); code != http.StatusOK {
		t.Fatalf("lifecycle code = %d", code)
	}
	if lc.Created != 0 || lc.Deleted == nil || *lc.Deleted != 1 {
		t.Errorf("shell-1 lifecycle = %+v", lc)
	}
	if code := getJSON(t, srv.URL+"/api/lifecycle/ghost", nil); code != http.StatusNotFound {
		t.Errorf("unknown id code = %d, want 404", code)
	}
}

func TestServer_Metrics(t *testing.T) {
	_, srv := newTestServer(t, store.New())

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "tankreplay_polls_issued_total") {
		t.Errorf("metrics body missing session counters:\n%s", body)
	}
}

func TestServer_RejectsRemoteClients(t *testing.T) {
	tests := []struct {
		name        string
		remote      string
		allowRemote bool
		wantCode    int
	}{
		{"loopback v4", "127.0.0.1:5000", false, http.StatusOK},
		{"loopback v6", "[::1]:5000", false, http.StatusOK},
		{"remote rejected", "203.0.113.5:5000", false, http.StatusForbidden},
		{"remote allowed", "203.0.113.5:5000", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(store.New(), testMeta, nil, nil, Config{AllowRemote: tt.allowRemote})
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// wsFrame is the generic shape of a feed message.
type wsFrame struct {
	Type    string                       `json:"type"`
	Index   int                          `json:"index"`
	Phase   string                       `json:"phase"`
	Winners []string                     `json:"winners"`
	Objects map[string]types.ObjectState `json:"objects"`
}

func readFrame(t *testing.T, conn *websocket.Conn) (wsFrame, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return wsFrame{}, err
	}
	var f wsFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return f, nil
}

// readUntil reads frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) wsFrame {
	t.Helper()
	for {
		f, err := readFrame(t, conn)
		if err != nil {
			t.Fatalf("waiting for %s frame: %v", typ, err)
		}
		if f.Type == typ {
			return f
		}
	}
}

func TestServer_WebSocketFollowsSession(t *testing.T) {
	state := store.New()
	s, srv := newTestServer(t, state)
	conn := dialWS(t, srv, "")

	if f := readUntil(t, conn, ipc.HelloType); f.Type != ipc.HelloType {
		t.Fatalf("first frame = %+v", f)
	}
	readUntil(t, conn, ipc.StatusType)
	if n := s.Clients(); n != 1 {
		t.Errorf("Clients() = %d, want 1", n)
	}

	appendStep(t, state, map[string]types.ObjectState{"tank-1": {"hp": 100.0}})
	ts := readUntil(t, conn, ipc.TimestepType)
	if ts.Index != 0 || ts.Objects["tank-1"]["hp"] != 100.0 {
		t.Errorf("timestep frame = %+v", ts)
	}

	finish(state, "1")
	out := readUntil(t, conn, ipc.OutcomeType)
	if len(out.Winners) != 1 || out.Winners[0] != "1" {
		t.Errorf("outcome frame = %+v", out)
	}

	_, err := readFrame(t, conn)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("after outcome err = %v, want normal closure", err)
	}
}

func TestServer_WebSocketFrom(t *testing.T) {
	state := store.New()
	for hp := 100.0; hp > 60; hp -= 10 {
		appendStep(t, state, map[string]types.ObjectState{"tank-1": {"hp": hp}})
	}
	finish(state)
	_, srv := newTestServer(t, state)
	conn := dialWS(t, srv, "?from=3")

	var indexes []int
	for {
		f, err := readFrame(t, conn)
		if err != nil {
			break
		}
		if f.Type == ipc.TimestepType {
			indexes = append(indexes, f.Index)
		}
	}
	if len(indexes) != 1 || indexes[0] != 3 {
		t.Errorf("timestep indexes = %v, want [3]", indexes)
	}
}

func TestServer_WebSocketBadFrom(t *testing.T) {
	_, srv := newTestServer(t, store.New())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?from=x"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response = %+v, want 400", resp)
	}
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	s := NewServer(store.New(), testMeta, nil, nil, Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
