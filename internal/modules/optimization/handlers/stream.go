package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/frontier/internal/modules/simulation"
	"github.com/aristath/frontier/internal/services"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	streamRequestTimeout = 10 * time.Second
	streamWriteTimeout   = 5 * time.Second
	progressInterval     = 100 * time.Millisecond
)

type progressFrame struct {
	Type      string `json:"type"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

type resultFrame struct {
	Type string `json:"type"`
	*simulation.Result
}

type errorFrame struct {
	Type  string      `json:"type"`
	Error errorDetail `json:"error"`
}

// HandleMonteCarloStream handles GET /api/optimization/monte-carlo/stream.
// The client sends one Monte Carlo request as a text message and receives
// throttled progress frames followed by a single result or error frame.
// Closing the connection cancels the run.
func (h *Handler) HandleMonteCarloStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected exit")

	var req services.MonteCarloRequest
	readCtx, cancel := context.WithTimeout(r.Context(), streamRequestTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		h.log.Debug().Err(err).Msg("No valid request on stream")
		conn.Close(websocket.StatusPolicyViolation, "expected a JSON Monte Carlo request")
		return
	}

	// any further client message or a disconnect cancels the run
	ctx := conn.CloseRead(r.Context())

	throttle := rate.Sometimes{First: 1, Interval: progressInterval}
	onProgress := func(completed, total int) {
		throttle.Do(func() {
			h.writeFrame(ctx, conn, progressFrame{Type: "progress", Completed: completed, Total: total})
		})
	}

	result, err := h.service.RunMonteCarlo(ctx, req, onProgress)
	if err != nil {
		_, detail := errorDetailFor(err)
		h.writeFrame(ctx, conn, errorFrame{Type: "error", Error: detail})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	h.writeFrame(ctx, conn, progressFrame{Type: "progress", Completed: result.NumSimulations, Total: result.RequestedSimulations})
	h.writeFrame(ctx, conn, resultFrame{Type: "result", Result: result})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	for _, o := range h.originPatterns {
		if o == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
}

func (h *Handler) writeFrame(ctx context.Context, conn *websocket.Conn, frame interface{}) {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()

	if err := wsjson.Write(writeCtx, conn, frame); err != nil {
		h.log.Debug().Err(err).Msg("Failed to write stream frame")
	}
}
