package transport

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pyr33x/goqtt/internal/broker"
	"github.com/pyr33x/goqtt/internal/logger"
)

// WSListener serves MQTT-over-WebSocket, framed with the "mqtt"
// subprotocol per MQTT-v5.0 §6: each WebSocket binary message carries
// exactly one MQTT control packet.
type WSListener struct {
	addr           string
	path           string
	broker         *broker.Broker
	log            *logger.Logger
	server         *http.Server
	isShuttingdown atomic.Bool
	upgrader       websocket.Upgrader
}

func NewWS(addr, path string, b *broker.Broker, log *logger.Logger) *WSListener {
	return &WSListener{
		addr:   addr,
		path:   path,
		broker: b,
		log:    log,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{"mqtt"},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (srv *WSListener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(srv.path, func(w http.ResponseWriter, r *http.Request) {
		srv.handleUpgrade(ctx, w, r)
	})

	srv.server = &http.Server{
		Addr:              srv.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.log.Error("websocket listener error", logger.ErrorAttr(err))
		}
	}()
	return nil
}

func (srv *WSListener) Stop() error {
	srv.isShuttingdown.Store(true)
	if srv.server != nil {
		return srv.server.Close()
	}
	return nil
}

func (srv *WSListener) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Error("websocket upgrade failed", logger.ErrorAttr(err))
		return
	}

	fc := &wsFrameConn{conn: conn}
	handleConnection(ctx, srv.broker, fc, srv.log)
}

// wsFrameConn adapts a *websocket.Conn to FrameConn: one binary message
// in, one binary message out, per packet.
type wsFrameConn struct {
	conn *websocket.Conn
}

func (f *wsFrameConn) ReadPacket() ([]byte, error) {
	_, data, err := f.conn.ReadMessage()
	return data, err
}

func (f *wsFrameConn) WritePacket(raw []byte) error {
	return f.conn.WriteMessage(websocket.BinaryMessage, raw)
}

func (f *wsFrameConn) RemoteAddr() string { return f.conn.RemoteAddr().String() }

func (f *wsFrameConn) Close() error { return f.conn.Close() }
