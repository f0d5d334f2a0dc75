package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dkeye/parley/internal/app/attach"
	"github.com/dkeye/parley/internal/app/call"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	// the API only listens locally
	CheckOrigin: func(r *http.Request) bool { return true },
}

type event struct {
	Type  string              `json:"type"`
	Call  *call.Snapshot      `json:"call,omitempty"`
	Sweep *attach.SweepResult `json:"sweep,omitempty"`
}

// events streams call snapshots and sweep results until the client goes
// away or the API shuts down. The current call state is sent first.
func (a *API) events(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("event feed connected")

	ctx, cancel := context.WithCancel(a.ctx)
	calls, stopCalls := a.svc.Calls.Subscribe()
	sweeps, stopSweeps := a.svc.Messages.Subscribe()

	go readPump(cancel, ws)
	go func() {
		defer stopSweeps()
		defer stopCalls()
		defer ws.Close()
		snap := a.svc.Calls.Snapshot()
		writePump(ctx, ws, event{Type: "call", Call: &snap}, calls, sweeps)
	}()
}

// readPump only watches for the client closing the socket.
func readPump(cancel context.CancelFunc, ws *websocket.Conn) {
	defer cancel()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, ws *websocket.Conn, first event, calls <-chan call.Snapshot, sweeps <-chan attach.SweepResult) {
	if !writeEvent(ws, first) {
		return
	}
	for {
		var ev event
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case snap := <-calls:
			ev = event{Type: "call", Call: &snap}
		case res := <-sweeps:
			ev = event{Type: "sweep", Sweep: &res}
		}
		if !writeEvent(ws, ev) {
			return
		}
	}
}

func writeEvent(ws *websocket.Conn, ev event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("event marshal")
		return false
	}
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("writePump set deadline")
		return false
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("writePump write error")
		return false
	}
	return true
}
