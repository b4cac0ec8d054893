package handler

import (
    "encoding/json"
    "errors"
    "log"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"
    "golang.org/x/time/rate"

    "github.com/iliyamo/cinema-seat-sync/internal/broadcast"
    "github.com/iliyamo/cinema-seat-sync/internal/model"
)

const (
    writeWait  = 10 * time.Second
    pongWait   = 60 * time.Second
    pingPeriod = 30 * time.Second
)

// Subscriber is the broadcast hub as seen by the push channel.
type Subscriber interface {
    Subscribe(showID int64) (*broadcast.Subscription, error)
    Subscribers(showID int64) int
}

// WSHandler serves the push channel: one WebSocket per viewer and show.
// The first frame is always a snapshot; every later frame is an update
// newer than that snapshot.
type WSHandler struct {
    Seats     SeatService
    Hub       Subscriber
    ReadLimit int64   // max inbound frame size
    FrameRate float64 // inbound frames per second before the socket is closed

    upgrader websocket.Upgrader
}

// NewWSHandler wires a WSHandler.
func NewWSHandler(seats SeatService, hub Subscriber, readLimit int64, frameRate float64) *WSHandler {
    if readLimit <= 0 {
        readLimit = 4096
    }
    if frameRate <= 0 {
        frameRate = 5
    }
    return &WSHandler{
        Seats:     seats,
        Hub:       hub,
        ReadLimit: readLimit,
        FrameRate: frameRate,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 4096,
            // Browsers connect from the front-end origin; the bearer token
            // is the access check.
            CheckOrigin: func(r *http.Request) bool { return true },
        },
    }
}

// Connect handles GET /v1/shows/:id/ws.
func (h *WSHandler) Connect(c echo.Context) error {
    showID, ok := showParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    // Subscribe before reading the snapshot so no commit falls in between.
    sub, err := h.Hub.Subscribe(showID)
    if err != nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "broadcast unavailable"})
    }
    snap, err := h.Seats.Snapshot(c.Request().Context(), showID)
    if err != nil {
        sub.Close()
        return writeError(c, err)
    }
    conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
    if err != nil {
        // The upgrader has already replied.
        sub.Close()
        return nil
    }

    s := &wsSession{
        conn:    conn,
        sub:     sub,
        done:    make(chan struct{}),
        limiter: rate.NewLimiter(rate.Limit(h.FrameRate), int(h.FrameRate)+1),
    }
    log.Printf("ws: viewer joined %s at seq=%d (%d watching)", sub.Topic, snap.Seq, h.Hub.Subscribers(showID))
    go s.writePump(snap)
    s.readPump(h.ReadLimit)
    return nil
}

type wsSession struct {
    conn     *websocket.Conn
    sub      *broadcast.Subscription
    done     chan struct{}
    doneOnce sync.Once
    limiter  *rate.Limiter
}

func (s *wsSession) stop() { s.doneOnce.Do(func() { close(s.done) }) }

func (s *wsSession) write(f model.Frame) error {
    data, err := json.Marshal(f)
    if err != nil {
        return err
    }
    s.conn.SetWriteDeadline(time.Now().Add(writeWait))
    return s.conn.WriteMessage(websocket.TextMessage, data)
}

// writePump owns all data writes to the socket.
func (s *wsSession) writePump(snap model.Snapshot) {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        s.sub.Close()
        s.conn.Close()
    }()

    if err := s.write(model.Frame{Type: model.FrameSnapshot, Snapshot: &snap}); err != nil {
        return
    }
    for {
        select {
        case <-s.done:
            s.conn.SetWriteDeadline(time.Now().Add(writeWait))
            s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
            return

        case ev, ok := <-s.sub.C:
            if !ok {
                if errors.Is(s.sub.Err(), broadcast.ErrLagging) {
                    _ = s.write(model.Frame{Type: model.FrameStale})
                }
                s.conn.SetWriteDeadline(time.Now().Add(writeWait))
                s.conn.WriteMessage(websocket.CloseMessage,
                    websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resubscribe"))
                return
            }
            if ev.Seq <= snap.Seq {
                continue // already in the snapshot
            }
            if err := s.write(model.Frame{Type: model.FrameUpdate, Event: &ev}); err != nil {
                log.Printf("ws: write to %s failed: %v", s.sub.Topic, err)
                return
            }

        case <-ticker.C:
            s.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }
        }
    }
}

// readPump only detects disconnects and enforces the inbound frame budget;
// viewers never mutate seats over the socket.
func (s *wsSession) readPump(limit int64) {
    defer s.stop()

    s.conn.SetReadLimit(limit)
    s.conn.SetReadDeadline(time.Now().Add(pongWait))
    s.conn.SetPongHandler(func(string) error {
        s.conn.SetReadDeadline(time.Now().Add(pongWait))
        return nil
    })
    for {
        if _, _, err := s.conn.ReadMessage(); err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
                log.Printf("ws: read error on %s: %v", s.sub.Topic, err)
            }
            return
        }
        if !s.limiter.Allow() {
            s.conn.WriteControl(websocket.CloseMessage,
                websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many frames"),
                time.Now().Add(writeWait))
            return
        }
    }
}
