package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"healthcompanion/internal/core"
	"healthcompanion/pkg"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEvent is a client-to-server action on the streaming channel.
type wsEvent struct {
	Type     string                  `json:"type"` // "message", "context", "medicine"
	Content  string                  `json:"content,omitempty"`
	Context  *pkg.ContextFormRequest `json:"context,omitempty"`
	Medicine string                  `json:"medicine,omitempty"`
}

// wsFrame is a server-to-client message: reply chunks while the model
// streams, then a final turn frame, or an error frame.
type wsFrame struct {
	Type  string            `json:"type"` // "chunk", "turn", "error"
	Chunk string            `json:"chunk,omitempty"`
	Turn  *pkg.TurnResponse `json:"turn,omitempty"`
	Error string            `json:"error,omitempty"`
}

// handleWebSocket serves the progressive-rendering channel.  Events arrive
// one at a time per connection, matching the one-in-flight-call session
// contract; the session's own turn lock still guards against a second
// connection racing this one.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		var cerr *codedError
		if errors.As(err, &cerr) {
			http.Error(w, err.Error(), cerr.code)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "session_id", sess.ID, "error", err)
		return
	}
	defer conn.Close()

	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("websocket closed", "session_id", sess.ID, "error", err)
			}
			return
		}

		sink := func(chunk string) {
			// Send failures here only degrade progressive rendering; the
			// final turn frame still reports the full result.
			_ = conn.WriteJSON(wsFrame{Type: "chunk", Chunk: chunk})
		}

		var res *core.TurnResult
		switch ev.Type {
		case "message":
			res, err = s.Controller.Submit(r.Context(), sess, ev.Content, sink)
		case "context":
			if ev.Context == nil {
				err = CodedErrorf(http.StatusBadRequest, "missing context payload")
				break
			}
			if err = validateContextForm(*ev.Context); err != nil {
				break
			}
			pctx := pkg.PatientContext{
				Gender:            ev.Context.Gender,
				AgeRange:          ev.Context.AgeRange,
				WeightKg:          ev.Context.WeightKg,
				TherapyPreference: ev.Context.TherapyPreference,
			}
			res, err = s.Controller.SubmitContext(r.Context(), sess, pctx, sink)
		case "medicine":
			res, err = s.Controller.SubmitMedicine(r.Context(), sess, ev.Medicine, sink)
		default:
			err = CodedErrorf(http.StatusBadRequest, "unknown event type %q", ev.Type)
		}

		if err != nil {
			if werr := conn.WriteJSON(wsFrame{Type: "error", Error: turnError(err).Error()}); werr != nil {
				return
			}
			continue
		}

		turn := s.turnResponse(sess, res)
		if werr := conn.WriteJSON(wsFrame{Type: "turn", Turn: &turn}); werr != nil {
			return
		}
	}
}
