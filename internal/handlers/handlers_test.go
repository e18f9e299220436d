package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArowuTest/lottery-odds/internal/auth"
	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/report"
	"github.com/ArowuTest/lottery-odds/internal/simulation"
	"github.com/ArowuTest/lottery-odds/internal/store"
)

type testServer struct {
	router *gin.Engine
	store  *store.MemoryStore
	sims   *SimulationHandler
	hub    *ProgressHub
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.Init("handler-test-secret", time.Hour)

	ms := store.NewMemoryStore()
	require.NoError(t, auth.EnsureAdmin(context.Background(), ms, "root", "root-pass"))

	hub := NewProgressHub()
	sims := NewSimulationHandler(ms, hub, simulation.Params{Iterations: 200, MainSpots: 1, WaitlistSpots: 1})
	t.Cleanup(sims.Shutdown)

	ts := &testServer{
		router: SetupRouter("*", Dependencies{Users: ms, Runs: ms, Hub: hub, Simulations: sims}),
		store:  ms,
		sims:   sims,
		hub:    hub,
	}
	ts.token = ts.login(t, "root", "root-pass")
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	saved := ts.token
	ts.token = ""
	w := ts.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{"username": username, "password": password})
	ts.token = saved
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

type runResponse struct {
	Run    models.SimulationRun `json:"run"`
	Report *report.Report       `json:"report"`
}

func decodeRun(t *testing.T, w *httptest.ResponseRecorder) runResponse {
	t.Helper()
	var resp runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func pool() []gin.H {
	return []gin.H{
		{"name": "ann", "tickets": 1},
		{"name": "bob", "tickets": 1},
		{"name": "cid", "tickets": 4},
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	ts.token = ""
	w := ts.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{"username": "root", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{"username": "ghost", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{"username": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSimulationsRequireToken(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	w := ts.do(t, http.MethodGet, "/api/v1/simulations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	ts.token = "garbage"
	w = ts.do(t, http.MethodGet, "/api/v1/simulations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestViewerCannotStartSimulations(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/admin/users", gin.H{
		"username": "watcher", "password": "watch-pass", "role": "VIEWER",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "watch-pass")

	ts.token = ts.login(t, "watcher", "watch-pass")
	w = ts.do(t, http.MethodPost, "/api/v1/simulations?wait=true", gin.H{"entrants": pool()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/simulations", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateUserValidatesRole(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/admin/users", gin.H{
		"username": "x", "password": "123456", "role": "OWNER",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/admin/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"root"`)
}

func TestCreateAndWait(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/simulations?wait=true", gin.H{
		"iterations":     300,
		"main_spots":     1,
		"waitlist_spots": 1,
		"seed":           99,
		"entrants":       pool(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeRun(t, w)

	assert.Equal(t, models.RunCompleted, resp.Run.Status)
	assert.Equal(t, 300, resp.Run.CompletedTrials)
	assert.Equal(t, int64(99), resp.Run.Seed)
	assert.Equal(t, 3, resp.Run.EntrantCount)
	assert.Equal(t, 6.0, resp.Run.TotalTickets)
	assert.Equal(t, "root", resp.Run.CreatedBy)
	assert.NotEmpty(t, resp.Run.PoolHash)
	require.NotNil(t, resp.Run.FinishedAt)

	require.NotNil(t, resp.Report)
	require.Len(t, resp.Report.Rows, 2)
	assert.Equal(t, uint64(99), resp.Report.Seed)
	// Two spots among three entrants: every trial fills both.
	var either float64
	for _, row := range resp.Report.Rows {
		either += row.EitherPct * float64(row.Entrants)
	}
	assert.InDelta(t, 200.0, either, 1e-9)

	// The archived copy matches.
	w = ts.do(t, http.MethodGet, "/api/v1/simulations/"+resp.Run.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decodeRun(t, w)
	assert.Equal(t, resp.Report.Rows, stored.Report.Rows)

	w = ts.do(t, http.MethodGet, "/api/v1/simulations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.SimulationRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, resp.Run.ID, list[0].ID)
}

func TestCreateUsesDefaults(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/simulations?wait=true", gin.H{"entrants": pool()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeRun(t, w)
	assert.Equal(t, 200, resp.Run.Iterations)
	assert.Equal(t, 1, resp.Run.MainSpots)
	assert.Equal(t, 1, resp.Run.WaitlistSpots)
	assert.NotZero(t, resp.Report.Seed)
}

func TestCreateRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	cases := map[string]gin.H{
		"no entrants":       {"entrants": []gin.H{}},
		"zero tickets":      {"entrants": []gin.H{{"name": "ann", "tickets": 0}}},
		"duplicate":         {"entrants": []gin.H{{"name": "ann", "tickets": 1}, {"name": " ann ", "tickets": 2}}},
		"empty name":        {"entrants": []gin.H{{"name": "  ", "tickets": 1}}},
		"zero iterations":   {"iterations": 0, "entrants": pool()},
		"negative main":     {"main_spots": -1, "entrants": pool()},
		"negative waitlist": {"waitlist_spots": -3, "entrants": pool()},
		"negative workers":  {"workers": -1, "entrants": pool()},
		"wrong type":        {"iterations": "many", "entrants": pool()},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/simulations?wait=true", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
	list, err := ts.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateFromCSVUpload(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "entrants.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("name,tickets\n# comment\nann,1\nbob,2\n\ncid,2\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("iterations", "150"))
	require.NoError(t, mw.WriteField("main_spots", "2"))
	require.NoError(t, mw.WriteField("waitlist_spots", "0"))
	require.NoError(t, mw.WriteField("seed", "18446744073709551615"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulations?wait=true", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ts.token)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeRun(t, w)
	assert.Equal(t, 150, resp.Run.Iterations)
	assert.Equal(t, 3, resp.Run.EntrantCount)
	assert.Equal(t, uint64(18446744073709551615), resp.Report.Seed)
	for _, row := range resp.Report.Rows {
		assert.Zero(t, row.WaitlistPct)
	}
}

func TestCreateFromBadCSVUpload(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "entrants.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("ann,1\nbob,lots\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulations", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ts.token)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bob")
}

func TestGetUnknownRun(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/v1/simulations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/simulations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/v1/simulations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func waitForStatus(t *testing.T, ts *testServer, id string) runResponse {
	t.Helper()
	var resp runResponse
	require.Eventually(t, func() bool {
		w := ts.do(t, http.MethodGet, "/api/v1/simulations/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		resp = decodeRun(t, w)
		return resp.Run.Status != models.RunRunning
	}, 10*time.Second, 10*time.Millisecond)
	return resp
}

func TestAsyncRunCompletes(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/simulations", gin.H{
		"iterations": 2000, "seed": 5, "entrants": pool(),
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Seed        string `json:"seed"`
		ProgressURL string `json:"progress_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, "RUNNING", accepted.Status)
	assert.Equal(t, "5", accepted.Seed)
	assert.True(t, strings.HasSuffix(accepted.ProgressURL, accepted.ID+"/progress"))

	resp := waitForStatus(t, ts, accepted.ID)
	assert.Equal(t, models.RunCompleted, resp.Run.Status)
	assert.Equal(t, 2000, resp.Report.Trials)

	// Finished runs cannot be cancelled.
	w = ts.do(t, http.MethodDelete, "/api/v1/simulations/"+accepted.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelRunningSimulation(t *testing.T) {
	ts := newTestServer(t)

	big := make([]gin.H, 2000)
	for i := range big {
		big[i] = gin.H{"name": uuid.NewString(), "tickets": 1 + i%7}
	}
	w := ts.do(t, http.MethodPost, "/api/v1/simulations", gin.H{
		"iterations": 5_000_000, "main_spots": 500, "waitlist_spots": 500, "workers": 1, "entrants": big,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	w = ts.do(t, http.MethodDelete, "/api/v1/simulations/"+accepted.ID, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	resp := waitForStatus(t, ts, accepted.ID)
	assert.Equal(t, models.RunCancelled, resp.Run.Status)
	assert.Less(t, resp.Run.CompletedTrials, 5_000_000)
	assert.Contains(t, resp.Run.Error, "context canceled")
	require.NotNil(t, resp.Report)
	assert.Equal(t, resp.Run.CompletedTrials, resp.Report.Trials)
}

func TestProgressWebsocket(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	w := ts.do(t, http.MethodPost, "/api/v1/simulations", gin.H{
		"iterations": 20000, "main_spots": 3, "waitlist_spots": 3, "workers": 2, "entrants": pool(),
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/simulations/" + accepted.ID + "/progress?token=" + ts.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last ProgressEvent
	prev := -1
	for {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var ev ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		assert.Equal(t, accepted.ID, ev.RunID.String())
		assert.Equal(t, 20000, ev.Total)
		assert.GreaterOrEqual(t, ev.Completed, prev)
		prev = ev.Completed
		last = ev
	}
	assert.Equal(t, models.RunCompleted, last.Status)
	assert.Equal(t, 20000, last.Completed)
}

func TestProgressWebsocketForFinishedRun(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	w := ts.do(t, http.MethodPost, "/api/v1/simulations?wait=true", gin.H{"entrants": pool()})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeRun(t, w)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/simulations/" + resp.Run.ID.String() + "/progress"
	header := http.Header{"Authorization": []string{"Bearer " + ts.token}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	var ev ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.RunCompleted, ev.Status)
	assert.Equal(t, 200, ev.Completed)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestProgressHubFinishAlwaysDelivers(t *testing.T) {
	hub := NewProgressHub()
	id := uuid.New()
	events, cancel := hub.Subscribe(id)
	defer cancel()

	for i := 0; i < 100; i++ {
		hub.Publish(ProgressEvent{RunID: id, Completed: i, Status: models.RunRunning})
	}
	hub.Finish(ProgressEvent{RunID: id, Completed: 100, Status: models.RunCompleted})

	var got []ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, models.RunCompleted, got[len(got)-1].Status)

	// Other runs are unaffected; cancelling twice is harmless.
	other, cancelOther := hub.Subscribe(uuid.New())
	cancelOther()
	cancelOther()
	_, open := <-other
	assert.False(t, open)
}
