package relay

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/protocol"
	"github.com/1ureka/rtcall/internal/util"
	"github.com/1ureka/rtcall/web"
)

// PINHeader carries the relay PIN on admin HTTP requests.
const PINHeader = "X-Relay-PIN"

var ErrUnauthorized = errors.New("invalid credentials")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the signaling relay's HTTP front: the WebSocket endpoint, a few
// JSON endpoints and the embedded browser demo.
type Server struct {
	hub    *Hub
	pin    string
	engine *gin.Engine

	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates a relay. An empty pin disables authentication.
func NewServer(pin string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		hub:    NewHub(),
		pin:    pin,
		engine: gin.New(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(RequestIDMiddleware)
	s.engine.Use(AccessLogMiddleware)

	s.engine.GET(config.StreamPath, s.handleStream)
	s.engine.GET("/users", s.handleUsers)
	s.engine.DELETE("/users/:id", s.handleKick)
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/", serveAsset("index.html", "text/html; charset=utf-8"))
	s.engine.GET("/main.js", serveAsset("main.js", "application/javascript"))

	return s
}

// Hub exposes the session registry.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on addr (":0" picks a free port) and serves in the
// background. It returns the bound port.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, errors.Wrap(err, "failed to start relay")
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay stopped: %v", err)
		}
	}()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

// Close stops accepting connections and closes every session.
func (s *Server) Close(ctx context.Context) error {
	for _, id := range s.hub.Online() {
		s.hub.Kick(id, PlatformAll)
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) checkPIN(pin string) bool {
	if s.pin == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) == 1
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		util.LogWarning("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	auth, authID, err := s.authenticate(conn)
	if err != nil {
		util.LogWarning("auth from %s rejected: %v", c.ClientIP(), err)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(protocol.NewError(err.Error()))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth failed"))
		return
	}

	sess := newSession(auth.ID, auth.Platform, conn)
	// The ack goes first in the queue so nothing routed to the user can
	// overtake it.
	sess.enqueue(&protocol.Event{ID: authID, Type: protocol.TypeReceived})
	s.hub.Register(sess)
	util.Stats.AddSession()
	util.LogInfo("%s connected on %s (%s)", auth.ID, auth.Platform, c.ClientIP())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sess.writer()
		// Unblock the reader when the writer gives up.
		conn.Close()
	}()

	sess.reader(s.hub)

	s.hub.Unregister(sess)
	sess.shutdown("session closed")
	<-writerDone
	util.Stats.RemoveSession()
	util.LogInfo("%s disconnected from %s", auth.ID, auth.Platform)
}

// authenticate reads the first frame, which must be an auth event.
func (s *Server) authenticate(conn *websocket.Conn) (*protocol.AuthBody, string, error) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, "", errors.Wrap(err, "read auth")
	}
	ev, err := protocol.Decode(data)
	if err != nil {
		return nil, "", err
	}
	auth, err := protocol.ParseAuth(ev)
	if err != nil {
		return nil, "", err
	}
	if !s.checkPIN(auth.Password) {
		return nil, "", ErrUnauthorized
	}

	id := ev.ID
	if id == "" {
		id = protocol.NewID()
	}
	return auth, id, nil
}

func (s *Server) handleUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": s.hub.Online()})
}

func (s *Server) handleKick(c *gin.Context) {
	if !s.checkPIN(c.GetHeader(PINHeader)) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
		return
	}
	platform := c.DefaultQuery("platform", PlatformAll)
	n := s.hub.Kick(c.Param("id"), platform)
	c.JSON(http.StatusOK, gin.H{"closed": n})
}

func serveAsset(name, contentType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := web.Assets.ReadFile(name)
		if err != nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, contentType, data)
	}
}
