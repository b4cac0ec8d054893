package handler

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/cinema-seat-sync/internal/broadcast"
    "github.com/iliyamo/cinema-seat-sync/internal/catalog"
    "github.com/iliyamo/cinema-seat-sync/internal/lease"
    "github.com/iliyamo/cinema-seat-sync/internal/middleware"
    "github.com/iliyamo/cinema-seat-sync/internal/model"
    "github.com/iliyamo/cinema-seat-sync/internal/registry"
    "github.com/iliyamo/cinema-seat-sync/internal/utils"
)

const secret = "handler-secret"

type testServer struct {
    e   *echo.Echo
    mgr *lease.Manager
    hub *broadcast.Hub
}

func newTestServer(t *testing.T) *testServer {
    t.Helper()
    hub := broadcast.NewHub(broadcast.Options{Origin: "test"})
    cat := catalog.NewStatic([]int64{42}, 2, 10)
    mgr := lease.NewManager(registry.NewMemory(), hub, cat, lease.Options{TTL: 300 * time.Second})

    seats := NewSeatHandler(mgr, cat)
    ws := NewWSHandler(mgr, hub, 0, 0)
    auth := middleware.JWTAuth(secret)

    e := echo.New()
    g := e.Group("/v1/seats", auth)
    g.POST("/hold", seats.Hold)
    g.POST("/release", seats.Release)
    g.POST("/release-all", seats.ReleaseAll)
    g.POST("/book", seats.Book)
    e.GET("/v1/shows/:id/occupied", seats.Occupied)
    e.GET("/v1/shows/:id/layout", seats.Layout)
    e.GET("/v1/shows/:id/ws", ws.Connect, auth)
    t.Cleanup(hub.Close)
    return &testServer{e: e, mgr: mgr, hub: hub}
}

func token(t *testing.T, user string) string {
    t.Helper()
    tok, err := utils.SignAccessToken(secret, user, time.Hour)
    require.NoError(t, err)
    return tok.Token
}

func (s *testServer) post(t *testing.T, path, user, body string) *httptest.ResponseRecorder {
    t.Helper()
    req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    if user != "" {
        req.Header.Set("Authorization", "Bearer "+token(t, user))
    }
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    return rec
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
    t.Helper()
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
    return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var out map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
    return out
}

func TestHoldEndpoint(t *testing.T) {
    s := newTestServer(t)

    rec := s.post(t, "/v1/seats/hold", "u1", `{"showId":42,"seatNumber":"A5"}`)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    body := decode(t, rec)
    assert.Equal(t, true, body["success"])
    l := body["lease"].(map[string]any)
    assert.Equal(t, "A5", l["seatNumber"])
    assert.Equal(t, "u1", l["userId"])

    rec = s.post(t, "/v1/seats/hold", "u2", `{"showId":42,"seatNumber":"A5"}`)
    require.Equal(t, http.StatusConflict, rec.Code)
    body = decode(t, rec)
    assert.Equal(t, model.ReasonHeld, body["reason"])
    assert.Equal(t, "A5", body["seatNumber"])

    rec = s.post(t, "/v1/seats/hold", "u1", `{"showId":42}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    rec = s.post(t, "/v1/seats/hold", "u1", `{"showId":7,"seatNumber":"A5"}`)
    assert.Equal(t, http.StatusNotFound, rec.Code)
    rec = s.post(t, "/v1/seats/hold", "u1", `{"showId":42,"seatNumber":"Q1"}`)
    assert.Equal(t, http.StatusNotFound, rec.Code)
    rec = s.post(t, "/v1/seats/hold", "", `{"showId":42,"seatNumber":"A6"}`)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    rec = s.post(t, "/v1/seats/hold", "u1", `not json`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBeaconRelease(t *testing.T) {
    s := newTestServer(t)
    require.Equal(t, http.StatusCreated, s.post(t, "/v1/seats/hold", "u1", `{"showId":42,"seatNumber":"A5"}`).Code)

    req := httptest.NewRequest(http.MethodPost, "/v1/seats/release?token="+token(t, "u1"),
        strings.NewReader(`{"showId":42,"seatNumber":"A5"}`))
    req.Header.Set(echo.HeaderContentType, "text/plain;charset=UTF-8")
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

    seat := decode(t, rec)["seat"].(map[string]any)
    assert.Equal(t, string(model.StatusAvailable), seat["status"])

    rec = s.post(t, "/v1/seats/release", "u1", `{"showId":42,"seatNumber":"A5"}`)
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.Equal(t, model.ReasonNotHeld, decode(t, rec)["reason"])
}

func TestReleaseAllEndpoint(t *testing.T) {
    s := newTestServer(t)
    for _, seat := range []string{"A1", "A2"} {
        require.Equal(t, http.StatusCreated, s.post(t, "/v1/seats/hold", "u1", `{"showId":42,"seatNumber":"`+seat+`"}`).Code)
    }
    rec := s.post(t, "/v1/seats/release-all", "u1", `{"showId":42}`)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, []any{"A1", "A2"}, decode(t, rec)["released"])
}

func TestBookAndOccupied(t *testing.T) {
    s := newTestServer(t)
    for _, seat := range []string{"A5", "A6"} {
        require.Equal(t, http.StatusCreated, s.post(t, "/v1/seats/hold", "u1", `{"showId":42,"seatNumber":"`+seat+`"}`).Code)
    }
    require.Equal(t, http.StatusCreated, s.post(t, "/v1/seats/hold", "u2", `{"showId":42,"seatNumber":"B1"}`).Code)

    rec := s.post(t, "/v1/seats/book", "u1", `{"showId":42,"seatNumbers":["A5","B1"]}`)
    require.Equal(t, http.StatusConflict, rec.Code)
    assert.Equal(t, "B1", decode(t, rec)["seatNumber"])

    rec = s.post(t, "/v1/seats/book", "u1", `{"showId":42,"seatNumbers":[]}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = s.post(t, "/v1/seats/book", "u1", `{"showId":42,"seatNumbers":["A6","A5"]}`)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    booking := decode(t, rec)["booking"].(map[string]any)
    assert.Equal(t, []any{"A5", "A6"}, booking["seatNumbers"])
    assert.NotEmpty(t, booking["bookingId"])

    rec = s.get(t, "/v1/shows/42/occupied")
    require.Equal(t, http.StatusOK, rec.Code)
    body := decode(t, rec)
    result := body["result"].([]any)
    require.Len(t, result, 3)
    statuses := map[string]string{}
    for _, r := range result {
        m := r.(map[string]any)
        statuses[m["seatNumber"].(string)] = m["status"].(string)
    }
    assert.Equal(t, map[string]string{"A5": "BOOKED", "A6": "BOOKED", "B1": "HELD"}, statuses)
    assert.EqualValues(t, 4, body["seq"])

    assert.Equal(t, http.StatusBadRequest, s.get(t, "/v1/shows/abc/occupied").Code)
    assert.Equal(t, http.StatusNotFound, s.get(t, "/v1/shows/9/occupied").Code)
}

func TestLayoutEndpoint(t *testing.T) {
    s := newTestServer(t)
    rec := s.get(t, "/v1/shows/42/layout")
    require.Equal(t, http.StatusOK, rec.Code)
    var layout catalog.Layout
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &layout))
    require.Len(t, layout.Rows, 2)
    assert.Equal(t, "A", layout.Rows[0].Label)
    assert.Len(t, layout.Rows[0].Seats, 10)
    assert.Equal(t, "VIP", layout.Rows[1].Seats[0].Tier)

    assert.Equal(t, http.StatusNotFound, s.get(t, "/v1/shows/9/layout").Code)
}

func readFrame(t *testing.T, conn *websocket.Conn) model.Frame {
    t.Helper()
    require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
    var f model.Frame
    require.NoError(t, conn.ReadJSON(&f))
    return f
}

func TestPushChannel(t *testing.T) {
    s := newTestServer(t)
    require.Equal(t, http.StatusCreated, s.post(t, "/v1/seats/hold", "u1", `{"showId":42,"seatNumber":"A1"}`).Code)

    srv := httptest.NewServer(s.e)
    defer srv.Close()
    url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/shows/42/ws?token=" + token(t, "viewer")

    conn, _, err := websocket.DefaultDialer.Dial(url, nil)
    require.NoError(t, err)
    defer conn.Close()

    first := readFrame(t, conn)
    require.Equal(t, model.FrameSnapshot, first.Type)
    require.NotNil(t, first.Snapshot)
    assert.Len(t, first.Snapshot.Seats, 20)
    assert.Equal(t, uint64(1), first.Snapshot.Seq)

    require.Equal(t, http.StatusCreated, s.post(t, "/v1/seats/hold", "u2", `{"showId":42,"seatNumber":"A5"}`).Code)
    update := readFrame(t, conn)
    require.Equal(t, model.FrameUpdate, update.Type)
    require.NotNil(t, update.Event)
    assert.Equal(t, "A5", update.Event.SeatID)
    assert.Equal(t, model.StatusHeld, update.Event.Status)
    assert.Equal(t, "u2", update.Event.UserID)
    assert.Greater(t, update.Event.Seq, first.Snapshot.Seq)
    assert.Equal(t, 1, s.hub.Subscribers(42))

    require.NoError(t, conn.Close())
    require.Eventually(t, func() bool { return s.hub.Subscribers(42) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPushChannelRejectsUnknownShow(t *testing.T) {
    s := newTestServer(t)
    srv := httptest.NewServer(s.e)
    defer srv.Close()

    url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/shows/9/ws?token=" + token(t, "viewer")
    _, resp, err := websocket.DefaultDialer.Dial(url, nil)
    require.Error(t, err)
    require.NotNil(t, resp)
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
    assert.Equal(t, 0, s.hub.Subscribers(9))
}
