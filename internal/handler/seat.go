package handler

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "log"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-seat-sync/internal/catalog"
    "github.com/iliyamo/cinema-seat-sync/internal/lease"
    "github.com/iliyamo/cinema-seat-sync/internal/middleware"
    "github.com/iliyamo/cinema-seat-sync/internal/model"
)

// maxBodyBytes caps request bodies of seat operations.
const maxBodyBytes = 16 << 10

// SeatService is the lease manager as seen by the HTTP layer.
type SeatService interface {
    Hold(ctx context.Context, showID int64, seatID, userID string) (model.Lease, error)
    Release(ctx context.Context, showID int64, seatID, userID string) (model.SeatState, error)
    ReleaseAll(ctx context.Context, showID int64, userID string) ([]string, error)
    Book(ctx context.Context, showID int64, seatIDs []string, userID string) (model.BookingRecord, error)
    Snapshot(ctx context.Context, showID int64) (model.Snapshot, error)
    Occupied(ctx context.Context, showID int64) ([]model.SeatState, uint64, error)
}

// SeatHandler serves the request/response surface of the engine.  Every
// mutation goes through the lease manager; the handler only decodes,
// identifies the caller and maps errors to status codes.
type SeatHandler struct {
    Seats   SeatService
    Catalog catalog.Source
}

// NewSeatHandler wires a SeatHandler.  Both dependencies must be non-nil.
func NewSeatHandler(seats SeatService, cat catalog.Source) *SeatHandler {
    if seats == nil || cat == nil {
        panic("nil dependency passed to NewSeatHandler")
    }
    return &SeatHandler{Seats: seats, Catalog: cat}
}

type seatRequest struct {
    ShowID      int64    `json:"showId"`
    SeatNumber  string   `json:"seatNumber"`
    SeatNumbers []string `json:"seatNumbers"`
}

// decodeSeatRequest reads a JSON body regardless of the declared content
// type, since beacon releases arrive as text/plain.
func decodeSeatRequest(c echo.Context) (seatRequest, error) {
    var req seatRequest
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
    if err != nil {
        return req, err
    }
    if len(body) > maxBodyBytes {
        return req, errors.New("request body too large")
    }
    if err := json.Unmarshal(body, &req); err != nil {
        return req, err
    }
    req.SeatNumber = strings.TrimSpace(req.SeatNumber)
    if req.ShowID <= 0 {
        return req, errors.New("showId is required")
    }
    return req, nil
}

// Hold handles POST /v1/seats/hold.  It leases one seat to the caller and
// returns the lease with its absolute deadline.
func (h *SeatHandler) Hold(c echo.Context) error {
    req, err := decodeSeatRequest(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": err.Error()})
    }
    if req.SeatNumber == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "seatNumber is required"})
    }
    l, err := h.Seats.Hold(c.Request().Context(), req.ShowID, req.SeatNumber, middleware.UserID(c))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "seat held", "lease": l})
}

// Release handles POST /v1/seats/release.  Only the current holder may
// release; beacon calls authenticate with ?token= and may send text/plain.
func (h *SeatHandler) Release(c echo.Context) error {
    req, err := decodeSeatRequest(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": err.Error()})
    }
    if req.SeatNumber == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "seatNumber is required"})
    }
    st, err := h.Seats.Release(c.Request().Context(), req.ShowID, req.SeatNumber, middleware.UserID(c))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "seat released", "seat": st})
}

// ReleaseAll handles POST /v1/seats/release-all.
func (h *SeatHandler) ReleaseAll(c echo.Context) error {
    req, err := decodeSeatRequest(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": err.Error()})
    }
    released, err := h.Seats.ReleaseAll(c.Request().Context(), req.ShowID, middleware.UserID(c))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "released": released})
}

// Book handles POST /v1/seats/book.  All listed seats must be held by the
// caller; otherwise nothing changes and 409 names the blocking seat.
func (h *SeatHandler) Book(c echo.Context) error {
    req, err := decodeSeatRequest(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": err.Error()})
    }
    rec, err := h.Seats.Book(c.Request().Context(), req.ShowID, req.SeatNumbers, middleware.UserID(c))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "seats booked", "booking": rec})
}

// Occupied handles GET /v1/shows/:id/occupied: every HELD or BOOKED seat
// plus the snapshot sequence the result reflects.
func (h *SeatHandler) Occupied(c echo.Context) error {
    showID, ok := showParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    seats, seq, err := h.Seats.Occupied(c.Request().Context(), showID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"result": seats, "seq": seq})
}

// Layout handles GET /v1/shows/:id/layout: the static seat map grouped by
// row.  It carries no status and is safe to cache.
func (h *SeatHandler) Layout(c echo.Context) error {
    showID, ok := showParam(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    seats, err := h.Catalog.Seats(c.Request().Context(), showID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, catalog.BuildLayout(showID, seats))
}

func showParam(c echo.Context) (int64, bool) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    return id, err == nil && id > 0
}

// writeError maps engine errors to HTTP responses.
func writeError(c echo.Context, err error) error {
    var conflict *model.ConflictError
    switch {
    case errors.As(err, &conflict):
        return c.JSON(http.StatusConflict, echo.Map{
            "success":    false,
            "error":      "conflict",
            "reason":     conflict.Reason,
            "seatNumber": conflict.SeatID,
            "message":    conflict.Message(),
        })
    case errors.Is(err, model.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": err.Error()})
    case errors.Is(err, lease.ErrMissingUser):
        return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
    case errors.Is(err, lease.ErrNoSeats):
        return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "seatNumbers is required"})
    case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"success": false, "error": "request cancelled"})
    }
    log.Printf("handler: %s %s failed: %v", c.Request().Method, c.Path(), err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "internal error"})
}
