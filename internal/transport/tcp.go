package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/pyr33x/goqtt/internal/broker"
	"github.com/pyr33x/goqtt/internal/logger"
	"github.com/pyr33x/goqtt/internal/packet"
)

// TCPListener accepts plain MQTT-over-TCP connections.
type TCPListener struct {
	addr               string
	listener           net.Listener
	broker             *broker.Broker
	log                *logger.Logger
	isShuttingdown     atomic.Bool
	maxConnections     int
	currentConnections atomic.Int32
}

func NewTCP(addr string, b *broker.Broker, log *logger.Logger) *TCPListener {
	return &TCPListener{
		addr:           addr,
		broker:         b,
		log:            log,
		maxConnections: 1000,
	}
}

func (srv *TCPListener) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", srv.addr))
	if err != nil {
		return err
	}
	srv.listener = listener
	go srv.accept(ctx)
	return nil
}

func (srv *TCPListener) Stop() error {
	srv.isShuttingdown.Store(true)
	if srv.listener != nil {
		return srv.listener.Close()
	}
	return nil
}

func (srv *TCPListener) accept(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			srv.log.Info("tcp listener shutting down")
			return
		default:
			conn, err := srv.listener.Accept()
			if err != nil {
				if srv.isShuttingdown.Load() {
					return
				}
				srv.log.Error("tcp accept error", logger.ErrorAttr(err))
				continue
			}
			if srv.currentConnections.Load() >= int32(srv.maxConnections) {
				conn.Write(packet.NewConnAck(false, packet.ServerUnavailable))
				conn.Close()
				continue
			}
			srv.currentConnections.Add(1)
			fc := &tcpFrameConn{conn: conn, reader: bufio.NewReader(conn)}
			go func() {
				defer srv.currentConnections.Add(-1)
				handleConnection(ctx, srv.broker, fc, srv.log)
			}()
		}
	}
}

// tcpFrameConn splits a raw TCP stream into complete MQTT control
// packets by reading the fixed header and its variable-length
// remaining-length field by hand.
type tcpFrameConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (f *tcpFrameConn) ReadPacket() ([]byte, error) {
	first, err := f.reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var remLenBytes []byte
	remainingLength := 0
	multiplier := 1
	for i := 0; i < 4; i++ {
		b, err := f.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		remLenBytes = append(remLenBytes, b)
		remainingLength += int(b&0x7F) * multiplier
		multiplier *= 128
		if b&0x80 == 0 {
			break
		}
		if i == 3 {
			return nil, &remainingLengthTooLarge{}
		}
	}

	raw := make([]byte, 1+len(remLenBytes)+remainingLength)
	raw[0] = first
	copy(raw[1:1+len(remLenBytes)], remLenBytes)
	if _, err := io.ReadFull(f.reader, raw[1+len(remLenBytes):]); err != nil {
		return nil, err
	}
	return raw, nil
}

func (f *tcpFrameConn) WritePacket(raw []byte) error {
	_, err := f.conn.Write(raw)
	return err
}

func (f *tcpFrameConn) RemoteAddr() string { return f.conn.RemoteAddr().String() }

func (f *tcpFrameConn) Close() error { return f.conn.Close() }

type remainingLengthTooLarge struct{}

func (*remainingLengthTooLarge) Error() string { return "remaining length exceeds 4 bytes" }
