package host

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wirelink-dev/wirelink/internal/protocol"
)

// session is one connected client.
type session struct {
	id     string
	host   *Host
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newSession(h *Host, conn *websocket.Conn, remote string) *session {
	id := uuid.NewString()
	return &session{
		id:     id,
		host:   h,
		conn:   conn,
		logger: h.logger.With("session_id", id, "remote", remote),
	}
}

// send encodes and writes one envelope. Writes are serialized; the
// read loop, the broadcast loop, and typing relays all share the
// connection.
func (s *session) send(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.host.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// close sends a close frame and tears the connection down. Safe to
// call more than once.
func (s *session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.conn.Close()
	})
}

// readLoop consumes inbound envelopes until the connection dies.
func (s *session) readLoop() {
	defer s.close(protocol.CloseNormal, "")

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			s.host.badEnvelopes.Add(1)
			s.logger.Debug("undecodable envelope", "error", err)
			s.sendError("bad_envelope", err.Error())
			continue
		}
		s.handle(env)
	}
}

func (s *session) handle(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypePing:
		if err := s.send(protocol.NewPong(env)); err != nil {
			s.logger.Debug("pong send failed", "error", err)
			return
		}
		s.host.pongsSent.Add(1)

	case protocol.TypeHandshake:
		s.handleHandshake(env)

	case protocol.TypeTyping:
		s.relayTyping(env)

	case protocol.TypeStatus:
		s.handleStatus(env)

	default:
		if protocol.ExpectsReply(env.Type) && env.ID != "" {
			s.respond(env)
			return
		}
		s.logger.Debug("unhandled envelope", "type", env.Type)
	}
}

// handleHandshake logs the client's announcement and pushes an
// initial state snapshot so the client has something to render.
func (s *session) handleHandshake(env protocol.Envelope) {
	var hs protocol.Handshake
	if err := protocol.UnmarshalData(env, &hs); err != nil {
		s.logger.Warn("malformed handshake", "error", err)
		s.sendError("bad_handshake", err.Error())
		return
	}

	s.logger.Info("client handshake",
		"protocol_version", hs.ProtocolVersion,
		"offline_mode", hs.ClientCapabilities.OfflineMode,
		"typing_indicators", hs.ClientCapabilities.TypingIndicators,
		"message_status", hs.ClientCapabilities.MessageStatus,
	)

	greeting, err := broadcastEnvelope(protocol.ChangeGit, s.host.revision.Load())
	if err != nil {
		s.logger.Warn("build greeting failed", "error", err)
		return
	}
	if err := s.send(greeting); err != nil {
		s.logger.Debug("greeting send failed", "error", err)
	}
}

// handleStatus acks id-carrying status reports as a delivery receipt.
func (s *session) handleStatus(env protocol.Envelope) {
	var st protocol.StatusPayload
	if err := protocol.UnmarshalData(env, &st); err == nil {
		s.logger.Debug("status report", "state", st.State, "was_offline", env.WasOffline)
	}
	if env.ID == "" {
		return
	}
	if err := s.send(protocol.NewAck(env.ID)); err != nil {
		s.logger.Debug("ack send failed", "error", err)
	}
}

// respond answers a reply-expecting envelope with an executed result
// echoing the submitted payload. The response carries the request id,
// which is what releases the client's pending entry, so no separate
// ack is sent.
func (s *session) respond(env protocol.Envelope) {
	resp, err := protocol.New(protocol.TypeResponse, commandResult{
		Executed: true,
		Echo:     env.Data,
	})
	if err != nil {
		s.logger.Warn("build response failed", "type", env.Type, "error", err)
		return
	}
	resp.ID = env.ID

	if err := s.send(resp); err != nil {
		s.logger.Debug("response send failed", "error", err)
		return
	}
	s.host.responses.Add(1)
}

func (s *session) relayTyping(env protocol.Envelope) {
	var tp protocol.TypingPayload
	if err := protocol.UnmarshalData(env, &tp); err != nil {
		s.logger.Debug("malformed typing payload", "error", err)
		return
	}

	for _, peer := range s.host.peers(s.id) {
		if err := peer.send(env); err != nil {
			s.logger.Debug("typing relay failed", "peer", peer.id, "error", err)
			continue
		}
		s.host.typingRelayed.Add(1)
	}
}

func (s *session) sendError(code, message string) {
	env, err := protocol.New(protocol.TypeError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	if err := s.send(env); err != nil {
		s.logger.Debug("error send failed", "error", err)
	}
}

// commandResult is the payload of every host response.
type commandResult struct {
	Executed bool            `json:"executed"`
	Echo     json.RawMessage `json:"echo,omitempty"`
}
