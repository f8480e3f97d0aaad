package transport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/pyr33x/goqtt/internal/packet"
)

func TestTCPFrameConnReadPacket(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fc := &tcpFrameConn{conn: server, reader: bufio.NewReader(server)}

	pub := &packet.PublishPacket{Topic: "a/b", Payload: []byte("hello")}
	raw := pub.Encode()

	done := make(chan struct{})
	go func() {
		client.Write(raw)
		close(done)
	}()

	client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	got, err := fc.ReadPacket()
	<-done
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("ReadPacket() = %v, want %v", got, raw)
	}
}

func TestTCPFrameConnWritePacket(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fc := &tcpFrameConn{conn: server, reader: bufio.NewReader(server)}

	raw := []byte{0xE0, 0x00} // DISCONNECT, no remaining length
	recvCh := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len(raw))
		n, _ := client.Read(buf)
		recvCh <- buf[:n]
	}()

	if err := fc.WritePacket(raw); err != nil {
		t.Fatalf("WritePacket() error = %v", err)
	}

	select {
	case got := <-recvCh:
		if string(got) != string(raw) {
			t.Errorf("client received %v, want %v", got, raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}
}
