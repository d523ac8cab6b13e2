package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/arkeyez/arkdoc/imaging"
	"github.com/arkeyez/arkdoc/observability"
	"github.com/arkeyez/arkdoc/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary origins in deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to the registry's Conn interface.
// Writes come from both the session and error frames, so they are serialized.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(v)
}

// handleWebsocket upgrades the connection and serves classification requests
// until the client disconnects. Requests on one connection run sequentially;
// a malformed frame produces an error message but keeps the connection open.
func (s *Server) handleWebsocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", observability.Error("err", err))
		return
	}
	conn := &wsConn{c: ws}
	s.registry.Register(conn)
	defer func() {
		s.registry.Unregister(conn)
		ws.Close()
	}()

	log := s.log.With(observability.String("remote", ws.RemoteAddr().String()))
	log.Info("websocket client connected",
		observability.Int("clients", s.registry.Count()))

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", observability.Error("err", err))
			}
			break
		}

		var req stream.ClassifyRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			s.sendError(conn, "invalid message: "+err.Error())
			continue
		}
		if req.Type != stream.TypeClassify {
			s.sendError(conn, "unsupported message type "+req.Type)
			continue
		}
		if req.Image == "" {
			s.sendError(conn, "image field is required")
			continue
		}
		data, err := imaging.DecodeBase64(req.Image)
		if err != nil {
			s.sendError(conn, "decode image: "+err.Error())
			continue
		}

		filename := req.Filename
		if filename == "" {
			filename = "unknown.jpg"
		}
		sess := stream.NewSession(s.registry, conn, s.log)
		s.pipe.ClassifyStream(c.Request.Context(), sess, filename, data)
		if rec, ok := sess.Outcome(); ok {
			s.archiveOutcome(c, rec)
		}
	}

	log.Info("websocket client disconnected",
		observability.Int("clients", s.registry.Count()))
}

func (s *Server) sendError(conn stream.Conn, message string) {
	err := s.registry.SendTo(conn, stream.ErrorMessage{Type: stream.TypeError, Message: message})
	if err != nil {
		s.log.Warn("send error frame", observability.Error("err", err))
	}
}
