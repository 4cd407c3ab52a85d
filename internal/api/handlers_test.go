package api

import (
    "bufio"
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "github.com/stretchr/testify/require"

    "wavebatch/internal/config"
    "wavebatch/internal/events"
    "wavebatch/internal/model"
    "wavebatch/internal/store"
)

// Two orders of item 0 (3 and 2 units); one aisle stocks 10.
const oneAisle = "2 1 1\n1 0 3\n1 0 2\n1 0 10\n1 10\n"

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
    t.Helper()
    cfg := config.Config{Environment: "development", RunWorkers: 1, RunQueue: 4, RunTimeout: time.Minute, WebhookMaxAttempts: 3}
    for _, m := range mutate { m(&cfg) }
    s := New(store.NewMemory(), events.NewMemory(), config.DefaultSolver(), cfg)
    t.Cleanup(func() { _ = s.Close() })
    return s
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, hdr ...string) *httptest.ResponseRecorder {
    t.Helper()
    req := httptest.NewRequest(method, path, bytes.NewReader(body))
    for i := 0; i+1 < len(hdr); i += 2 { req.Header.Set(hdr[i], hdr[i+1]) }
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
    t.Helper()
    var v T
    require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
    return v
}

func solveWait(t *testing.T, h http.Handler) model.Run {
    t.Helper()
    body, _ := json.Marshal(map[string]any{"instance": oneAisle, "algorithm": "grasp", "seed": 3, "wait": true})
    rr := do(t, h, http.MethodPost, "/v1/solve", body)
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    return decode[model.Run](t, rr)
}

func TestHealthReady(t *testing.T) {
    h := newTestServer(t).Routes()
    require.Equal(t, 200, do(t, h, http.MethodGet, "/healthz", nil).Code)
    require.Equal(t, 200, do(t, h, http.MethodGet, "/readyz", nil).Code)
}

func TestInstancesCreateGetList(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/instances?name=tiny", []byte(oneAisle))
    require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
    rec := decode[model.InstanceRecord](t, rr)
    require.Equal(t, "tiny", rec.Name)
    require.Equal(t, 2, rec.NumOrders)
    require.Equal(t, 10, rec.MaxItems)

    rr = do(t, h, http.MethodGet, "/v1/instances/"+rec.ID, nil)
    require.Equal(t, 200, rr.Code)

    rr = do(t, h, http.MethodGet, "/v1/instances?limit=5", nil)
    require.Equal(t, 200, rr.Code)
    page := decode[struct{ Items []model.InstanceRecord }](t, rr)
    require.Len(t, page.Items, 1)

    rr = do(t, h, http.MethodGet, "/v1/instances/nope", nil)
    require.Equal(t, 404, rr.Code)
}

func TestInstancesRejectMalformed(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/instances", []byte("2 1\n"))
    require.Equal(t, http.StatusBadRequest, rr.Code)
    p := decode[Problem](t, rr)
    require.Contains(t, p.Detail, "line 1")
}

func TestSolveWaitAndSolution(t *testing.T) {
    h := newTestServer(t).Routes()
    run := solveWait(t, h)
    require.Equal(t, model.RunCompleted, run.Status)
    require.Equal(t, 5.0, run.Efficiency)
    require.Equal(t, []int{0, 1}, run.Orders)
    require.Equal(t, int64(3), run.Seed)
    require.Equal(t, "grasp", run.Params["algorithm"])

    rr := do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/solution", nil)
    require.Equal(t, 200, rr.Code)
    require.Equal(t, "2\n0\n1\n1\n0\n", rr.Body.String())

    rr = do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/checkpoints", nil)
    require.Equal(t, 200, rr.Code)
    cps := decode[struct{ Items []model.Checkpoint }](t, rr)
    require.NotEmpty(t, cps.Items)

    rr = do(t, h, http.MethodGet, "/v1/runs?status=completed", nil)
    require.Equal(t, 200, rr.Code)
    page := decode[struct{ Items []model.Run }](t, rr)
    require.Len(t, page.Items, 1)
}

func TestSolveAsync(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    go func() { _ = s.Runner.Run(ctx) }()

    rr := do(t, h, http.MethodPost, "/v1/instances", []byte(oneAisle))
    rec := decode[model.InstanceRecord](t, rr)
    body, _ := json.Marshal(map[string]any{"instanceId": rec.ID, "algorithm": "pso"})
    rr = do(t, h, http.MethodPost, "/v1/solve", body)
    require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
    run := decode[model.Run](t, rr)
    require.Equal(t, model.RunQueued, run.Status)
    require.Equal(t, "/v1/runs/"+run.ID, rr.Header().Get("Location"))

    require.Eventually(t, func() bool {
        got, err := s.Store.GetRun(context.Background(), run.ID)
        return err == nil && got.Status == model.RunCompleted
    }, 5*time.Second, 10*time.Millisecond)
}

func TestSolveRejectsBadRequests(t *testing.T) {
    h := newTestServer(t).Routes()
    cases := []struct {
        name string
        body string
        code int
    }{
        {"no instance", `{"algorithm":"grasp"}`, 400},
        {"both instances", `{"instanceId":"x","instance":"1 1 1"}`, 400},
        {"bad algorithm", `{"instance":"` + strings.ReplaceAll(oneAisle, "\n", `\n`) + `","algorithm":"simplex"}`, 400},
        {"bad mutation", `{"instance":"x","mutationRate":1.5}`, 400},
        {"bad callback", `{"instance":"x","callbackUrl":"ftp://x"}`, 400},
        {"unknown instance", `{"instanceId":"nope"}`, 404},
        {"malformed instance", `{"instance":"1 1"}`, 400},
        {"invalid json", `{`, 400},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            rr := do(t, h, http.MethodPost, "/v1/solve", []byte(tc.body))
            require.Equal(t, tc.code, rr.Code, rr.Body.String())
        })
    }
}

func TestSolutionConflictUntilCompleted(t *testing.T) {
    s := newTestServer(t)
    ctx := context.Background()
    rec, err := s.storeInstance(ctx, "", []byte(oneAisle))
    require.NoError(t, err)
    run, err := s.Store.CreateRun(ctx, model.Run{InstanceID: rec.ID, Algorithm: "grasp"})
    require.NoError(t, err)

    rr := do(t, s.Routes(), http.MethodGet, "/v1/runs/"+run.ID+"/solution", nil)
    require.Equal(t, http.StatusConflict, rr.Code)
    rr = do(t, s.Routes(), http.MethodGet, "/v1/runs/"+run.ID+"/bogus", nil)
    require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestValidate(t *testing.T) {
    h := newTestServer(t).Routes()
    body, _ := json.Marshal(model.ValidateRequest{Instance: oneAisle, Solution: "2\n0\n1\n1\n0\n"})
    rr := do(t, h, http.MethodPost, "/v1/validate", body)
    require.Equal(t, 200, rr.Code, rr.Body.String())
    out := decode[struct {
        Feasible bool
        Report   struct{ Fitness float64 }
    }](t, rr)
    require.True(t, out.Feasible)
    require.Equal(t, 5.0, out.Report.Fitness)

    // lower bound of 1 is met but the aisle list is empty
    body, _ = json.Marshal(model.ValidateRequest{Instance: oneAisle, Solution: "1\n0\n0\n"})
    rr = do(t, h, http.MethodPost, "/v1/validate", body)
    require.Equal(t, 200, rr.Code)
    require.False(t, decode[struct{ Feasible bool }](t, rr).Feasible)

    body, _ = json.Marshal(model.ValidateRequest{Instance: oneAisle, Solution: "1\n7\n1\n0\n"})
    rr = do(t, h, http.MethodPost, "/v1/validate", body)
    require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminSolverConfig(t *testing.T) {
    h := newTestServer(t, func(c *config.Config) { c.AdminToken = "tok" }).Routes()
    put := []byte(`{"config":{"algorithm":"pso","pso":{"particles":8}}}`)

    rr := do(t, h, http.MethodPut, "/v1/admin/solver/config", put)
    require.Equal(t, http.StatusForbidden, rr.Code)
    rr = do(t, h, http.MethodPut, "/v1/admin/solver/config", put, "Authorization", "Bearer wrong")
    require.Equal(t, http.StatusForbidden, rr.Code)
    rr = do(t, h, http.MethodPut, "/v1/admin/solver/config", put, "Authorization", "Bearer tok")
    require.Equal(t, 200, rr.Code, rr.Body.String())

    rr = do(t, h, http.MethodPut, "/v1/admin/solver/config", []byte(`{"config":{"algorithm":"simplex"}}`), "Authorization", "Bearer tok")
    require.Equal(t, http.StatusBadRequest, rr.Code)

    rr = do(t, h, http.MethodGet, "/v1/solver/config", nil)
    require.Equal(t, 200, rr.Code)
    got := decode[struct{ Defaults config.SolverDefaults }](t, rr)
    require.Equal(t, "pso", got.Defaults.Algorithm)
    require.Equal(t, 8, got.Defaults.PSO.Particles)

    rr = do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries", nil, "Authorization", "Bearer tok")
    require.Equal(t, 200, rr.Code)
    rr = do(t, h, http.MethodPost, "/v1/admin/webhook-deliveries/nope/retry", nil, "Authorization", "Bearer tok")
    require.Equal(t, 404, rr.Code)
}

func TestOpenAPIJSON(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodGet, "/openapi.json", nil)
    require.Equal(t, 200, rr.Code, rr.Body.String())
    doc := decode[map[string]any](t, rr)
    paths, ok := doc["paths"].(map[string]any)
    require.True(t, ok)
    require.Contains(t, paths, "/v1/solve")
    post := paths["/v1/solve"].(map[string]any)["post"].(map[string]any)
    require.Contains(t, post, "callbacks")

    require.Equal(t, 200, do(t, h, http.MethodGet, "/openapi.yaml", nil).Code)
    require.Equal(t, 200, do(t, h, http.MethodGet, "/metrics", nil).Code)
}

func TestEventsStreamFinishedRun(t *testing.T) {
    h := newTestServer(t).Routes()
    run := solveWait(t, h)
    rr := do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/events/stream", nil)
    require.Equal(t, 200, rr.Code)
    require.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
    sc := bufio.NewScanner(strings.NewReader(rr.Body.String()))
    require.True(t, sc.Scan())
    require.Equal(t, "event: run.finished", sc.Text())
}

func TestRunWebSocketFinishedRun(t *testing.T) {
    s := newTestServer(t)
    srv := httptest.NewServer(s.Routes())
    defer srv.Close()
    run := solveWait(t, s.Routes())

    url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/" + run.ID + "/ws"
    conn, _, err := websocket.DefaultDialer.Dial(url, nil)
    require.NoError(t, err)
    defer conn.Close()
    var evt events.Event
    require.NoError(t, conn.ReadJSON(&evt))
    require.Equal(t, events.TypeRunFinished, evt.Type)
    require.Equal(t, model.RunCompleted, evt.Data["status"])
}

// lossyBroker never delivers anything.
type lossyBroker struct{}

func (lossyBroker) Subscribe(string) chan events.Event { return make(chan events.Event) }
func (lossyBroker) Unsubscribe(string, chan events.Event) {}
func (lossyBroker) Publish(string, events.Event) {}

func TestEventsStreamEndsWhenFinishEventLost(t *testing.T) {
    s := newTestServer(t)
    s.Broker = lossyBroker{}
    s.Heartbeat = 20 * time.Millisecond
    ctx := context.Background()
    rec, err := s.storeInstance(ctx, "", []byte(oneAisle))
    require.NoError(t, err)
    run, err := s.Store.CreateRun(ctx, model.Run{InstanceID: rec.ID, Algorithm: "grasp"})
    require.NoError(t, err)

    go func() {
        time.Sleep(50 * time.Millisecond)
        done := run
        done.Status = model.RunCompleted
        _ = s.Store.UpdateRun(ctx, done)
    }()
    rr := do(t, s.Routes(), http.MethodGet, "/v1/runs/"+run.ID+"/events/stream", nil)
    require.Equal(t, 200, rr.Code)
    body := rr.Body.String()
    require.True(t, strings.HasPrefix(body, "event: run.status"), body)
    require.Contains(t, body, "event: run.finished")
}

func TestRateLimit(t *testing.T) {
    h := newTestServer(t, func(c *config.Config) { c.RateRPS = 1; c.RateBurst = 1 }).Routes()
    require.Equal(t, 200, do(t, h, http.MethodGet, "/healthz", nil).Code)
    require.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/healthz", nil).Code)
    require.Equal(t, 200, do(t, h, http.MethodGet, "/healthz", nil, "X-Forwarded-For", "10.0.0.9").Code)
}

func TestRouteLabel(t *testing.T) {
    require.Equal(t, "/v1/runs/{id}/solution", routeLabel("/v1/runs/8c1b3a4e-8f71-4a3c-9d8e-0c6f7f3b2a10/solution"))
    require.Equal(t, "/v1/runs", routeLabel("/v1/runs"))
}
