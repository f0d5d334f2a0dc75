// Package signaltest runs an in-memory signaling relay implementing the
// backend's /signaling/send and /signaling/poll contract for tests.
package signaltest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/parley/internal/domain"
	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	Room    string               `json:"room" binding:"required"`
	Payload domain.SignalPayload `json:"payload"`
}

type Relay struct {
	Server  *httptest.Server
	limiter *RateLimiter

	mu        sync.Mutex
	rooms     map[domain.RoomName][]domain.SignalingMessage
	nextID    int64
	failPolls int
	failSends int
	polls     int
	hold      chan struct{}
}

func NewRelay(t testing.TB) *Relay {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := &Relay{
		rooms:   make(map[domain.RoomName][]domain.SignalingMessage),
		limiter: NewRateLimiter(500, time.Second),
	}
	engine := gin.New()
	engine.POST("/signaling/send", r.handleSend)
	engine.GET("/signaling/poll", r.handlePoll)
	r.Server = httptest.NewServer(engine)
	t.Cleanup(func() {
		r.ReleasePolls()
		r.Server.Close()
	})
	return r
}

func (r *Relay) URL() string { return r.Server.URL }

func (r *Relay) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !r.limiter.Allow(req.Payload.From) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
		return
	}
	r.mu.Lock()
	if r.failSends > 0 {
		r.failSends--
		r.mu.Unlock()
		c.Status(http.StatusInternalServerError)
		return
	}
	r.mu.Unlock()
	r.Inject(domain.RoomName(req.Room), req.Payload)
	c.Status(http.StatusOK)
}

func (r *Relay) handlePoll(c *gin.Context) {
	room := domain.RoomName(c.Query("room"))
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if room == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room and numeric since are required"})
		return
	}

	r.mu.Lock()
	r.polls++
	hold := r.hold
	fail := r.failPolls > 0
	if fail {
		r.failPolls--
	}
	r.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-c.Request.Context().Done():
			return
		}
	}
	if fail {
		c.Status(http.StatusServiceUnavailable)
		return
	}

	out := make([]domain.SignalingMessage, 0)
	for _, m := range r.Messages(room) {
		if m.ID > since {
			out = append(out, m)
		}
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// Inject appends p to room as if a peer had sent it and returns its id.
func (r *Relay) Inject(room domain.RoomName, p domain.SignalPayload) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.rooms[room] = append(r.rooms[room], domain.SignalingMessage{ID: r.nextID, Room: room, Payload: p})
	return r.nextID
}

func (r *Relay) Messages(room domain.RoomName) []domain.SignalingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SignalingMessage(nil), r.rooms[room]...)
}

// Types lists the payload types posted to room, in order.
func (r *Relay) Types(room domain.RoomName) []domain.SignalType {
	var out []domain.SignalType
	for _, m := range r.Messages(room) {
		out = append(out, m.Payload.Type)
	}
	return out
}

func (r *Relay) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

// FailPolls makes the next n polls answer 503.
func (r *Relay) FailPolls(n int) {
	r.mu.Lock()
	r.failPolls = n
	r.mu.Unlock()
}

// FailSends makes the next n sends answer 500.
func (r *Relay) FailSends(n int) {
	r.mu.Lock()
	r.failSends = n
	r.mu.Unlock()
}

// HoldPolls parks every poll until ReleasePolls is called.
func (r *Relay) HoldPolls() {
	r.mu.Lock()
	if r.hold == nil {
		r.hold = make(chan struct{})
	}
	r.mu.Unlock()
}

func (r *Relay) ReleasePolls() {
	r.mu.Lock()
	if r.hold != nil {
		close(r.hold)
		r.hold = nil
	}
	r.mu.Unlock()
}
