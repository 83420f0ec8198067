package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rcourtman/pulse-snmp-profiles/internal/logging"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
	"github.com/rcourtman/pulse-snmp-profiles/internal/utils"
)

const (
	streamWriteWait      = 10 * time.Second
	streamPongWait       = 60 * time.Second
	streamPingPeriod     = 54 * time.Second
	streamMaxMessageSize = 64 * 1024
	streamSendBuffer     = 64
)

// CheckOrigin is left nil: gorilla rejects cross-origin upgrades by default.
var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// FitStreamRequest is one fit request sent over the stream. ID is echoed back
// so callers can match results, which arrive in completion order.
type FitStreamRequest struct {
	ID       string `json:"id"`
	IP       string `json:"ip"`
	Profile  string `json:"profile,omitempty"`
	Location string `json:"location,omitempty"`
	OID      string `json:"oid,omitempty"`
}

// FitStreamResult answers one FitStreamRequest.
type FitStreamResult struct {
	ID      string            `json:"id"`
	IP      string            `json:"ip,omitempty"`
	Found   bool              `json:"found"`
	Profile string            `json:"profile,omitempty"`
	Config  *snmp.AgentConfig `json:"config,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
}

type fitStream struct {
	conn       *websocket.Conn
	resolver   AsyncResolver
	logger     zerolog.Logger
	send       chan FitStreamResult
	writerDone chan struct{}
	pending    sync.WaitGroup
}

// handleFitStream upgrades to a websocket and resolves every request it
// receives concurrently, writing each result as soon as it is known.
func (r *Router) handleFitStream(w http.ResponseWriter, req *http.Request) {
	logger := logging.FromContext(req.Context())

	conn, err := streamUpgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to upgrade fit stream")
		return
	}

	s := &fitStream{
		conn:       conn,
		resolver:   r.async,
		logger:     logger,
		send:       make(chan FitStreamResult, streamSendBuffer),
		writerDone: make(chan struct{}),
	}

	r.metrics.streamOpened()
	defer r.metrics.streamClosed()

	ctx, cancel := context.WithCancel(req.Context())
	go s.writePump()

	logger.Debug().Msg("Fit stream opened")
	s.readPump(ctx)

	cancel()
	s.pending.Wait()
	close(s.send)
	<-s.writerDone
	_ = conn.Close()
	logger.Debug().Msg("Fit stream closed")
}

func (s *fitStream) readPump(ctx context.Context) {
	s.conn.SetReadLimit(streamMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Fit stream read error")
			}
			return
		}

		var msg FitStreamRequest
		if err := json.Unmarshal(message, &msg); err != nil {
			s.deliver(FitStreamResult{Error: "Message is not a valid fit request", Code: "invalid_request"})
			continue
		}
		s.start(ctx, msg)
	}
}

func (s *fitStream) start(ctx context.Context, msg FitStreamRequest) {
	addr, err := utils.ParseHostAddress(msg.IP)
	if err != nil {
		s.deliver(FitStreamResult{ID: msg.ID, IP: msg.IP, Error: "A valid ip is required", Code: "invalid_ip"})
		return
	}
	oid := strings.TrimSpace(msg.OID)
	if oid != "" {
		if _, err := snmp.ParseObjID(oid); err != nil {
			s.deliver(FitStreamResult{ID: msg.ID, IP: msg.IP, Error: "The oid must be a numeric object identifier", Code: "invalid_oid"})
			return
		}
	}

	results := s.resolver.ResolveByLabelAsync(ctx, msg.Profile, addr, strings.TrimSpace(msg.Location), oid)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		out := FitStreamResult{ID: msg.ID, IP: addr.String()}
		if result, ok := <-results; ok && result.Found {
			cfg := result.Config.Redacted()
			out.Found = true
			out.Profile = cfg.ProfileLabel
			out.Config = &cfg
		}
		s.deliver(out)
	}()
}

// deliver queues a result unless the writer has already gone away.
func (s *fitStream) deliver(res FitStreamResult) {
	select {
	case s.send <- res:
	case <-s.writerDone:
	}
}

func (s *fitStream) writePump() {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
	}()

	for {
		select {
		case res, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(res); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to write fit stream result")
				// Unblocks the reader so the handler can finish.
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}
