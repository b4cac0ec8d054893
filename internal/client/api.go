// Package client is the viewer side of the engine: an HTTP client for seat
// operations, a push channel stream, and a Session actor that keeps a local
// mirror of a show's seats with countdowns and disconnect cleanup.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

// StatusError is an unexpected HTTP response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// API calls the reservation service on behalf of one user.
type API struct {
	BaseURL string // e.g. http://localhost:8080
	Token   string // bearer token
	HTTP    *http.Client
}

// NewAPI returns an API with a 10s request timeout.
func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type seatBody struct {
	ShowID      int64    `json:"showId"`
	SeatNumber  string   `json:"seatNumber,omitempty"`
	SeatNumbers []string `json:"seatNumbers,omitempty"`
}

type errorBody struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	SeatNumber string `json:"seatNumber"`
}

// Hold leases a seat.
func (a *API) Hold(ctx context.Context, showID int64, seatID string) (model.Lease, error) {
	var out struct {
		Lease model.Lease `json:"lease"`
	}
	err := a.do(ctx, http.MethodPost, "/v1/seats/hold", seatBody{ShowID: showID, SeatNumber: seatID}, &out)
	return out.Lease, err
}

// Release frees a seat the user holds.
func (a *API) Release(ctx context.Context, showID int64, seatID string) (model.SeatState, error) {
	var out struct {
		Seat model.SeatState `json:"seat"`
	}
	err := a.do(ctx, http.MethodPost, "/v1/seats/release", seatBody{ShowID: showID, SeatNumber: seatID}, &out)
	return out.Seat, err
}

// ReleaseAll frees every seat the user holds on the show.
func (a *API) ReleaseAll(ctx context.Context, showID int64) ([]string, error) {
	var out struct {
		Released []string `json:"released"`
	}
	err := a.do(ctx, http.MethodPost, "/v1/seats/release-all", seatBody{ShowID: showID}, &out)
	return out.Released, err
}

// Book buys the given held seats atomically.
func (a *API) Book(ctx context.Context, showID int64, seatIDs []string) (model.BookingRecord, error) {
	var out struct {
		Booking model.BookingRecord `json:"booking"`
	}
	err := a.do(ctx, http.MethodPost, "/v1/seats/book", seatBody{ShowID: showID, SeatNumbers: seatIDs}, &out)
	return out.Booking, err
}

// Occupied returns the HELD and BOOKED seats of a show and the sequence
// they reflect.
func (a *API) Occupied(ctx context.Context, showID int64) ([]model.SeatState, uint64, error) {
	var out struct {
		Result []model.SeatState `json:"result"`
		Seq    uint64            `json:"seq"`
	}
	err := a.do(ctx, http.MethodGet, "/v1/shows/"+strconv.FormatInt(showID, 10)+"/occupied", nil, &out)
	return out.Result, out.Seq, err
}

// Beacon sends a release the way a closing browser tab does: text/plain
// body, token in the query, response ignored apart from transport errors.
func (a *API) Beacon(ctx context.Context, showID int64, seatID string) error {
	body, err := json.Marshal(seatBody{ShowID: showID, SeatNumber: seatID})
	if err != nil {
		return err
	}
	u := a.BaseURL + "/v1/seats/release?token=" + url.QueryEscape(a.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// StreamURL returns the push channel URL of a show.
func (a *API) StreamURL(showID int64) string {
	base := a.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s/v1/shows/%d/ws?token=%s", base, showID, url.QueryEscape(a.Token))
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.Unmarshal(data, out)
	}
	return decodeError(resp.StatusCode, data)
}

// decodeError rebuilds the engine's typed errors from a failed response.
func decodeError(code int, data []byte) error {
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	switch code {
	case http.StatusConflict:
		return &model.ConflictError{SeatID: eb.SeatNumber, Reason: eb.Reason}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", eb.Error, model.ErrNotFound)
	}
	msg := eb.Error
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	return &StatusError{Code: code, Message: msg}
}
