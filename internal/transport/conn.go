package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pyr33x/goqtt/internal/broker"
	"github.com/pyr33x/goqtt/internal/logger"
	"github.com/pyr33x/goqtt/internal/packet"
	"github.com/pyr33x/goqtt/internal/session"
	"github.com/pyr33x/goqtt/pkg/er"
)

// publisher adapts a FrameConn to session.Deliverer, re-encoding each
// PUBLISH for the session's negotiated protocol version.
type publisher struct {
	fc      FrameConn
	version packet.ProtocolVersion
}

func (p *publisher) WritePublish(pub *packet.PublishPacket) error {
	return p.fc.WritePacket(pub.EncodeVersioned(p.version))
}

func (p *publisher) WritePubrel(pubrel *packet.PubrelPacket) error {
	return p.fc.WritePacket(pubrel.EncodeVersioned(p.version))
}

func (p *publisher) Close() error { return p.fc.Close() }

// handleConnection runs the full per-client protocol loop: CONNECT
// handshake, then a dispatch loop over every subsequent control packet,
// shared by both the TCP and WebSocket adapters.
func handleConnection(ctx context.Context, b *broker.Broker, fc FrameConn, log *logger.Logger) {
	defer fc.Close()

	raw, err := fc.ReadPacket()
	if err != nil {
		return
	}

	cp := &packet.ConnectPacket{}
	if err := cp.Parse(raw); err != nil {
		log.LogError(err, "connect parse failed", logger.String("remote_addr", fc.RemoteAddr()))
		fc.WritePacket(packet.NewConnAck(false, er.ConnackCode(err)))
		return
	}

	username := ""
	if cp.Username != nil {
		username = *cp.Username
	}
	password := ""
	if cp.Password != nil {
		password = *cp.Password
	}
	if err := b.Authenticate(ctx, cp.ClientID, username, password); err != nil {
		log.LogAuth(cp.ClientID, username, false, err.Error())
		fc.WritePacket(packet.NewConnAck(false, packet.BadUsernameOrPassword))
		return
	}
	log.LogAuth(cp.ClientID, username, true, "ok")

	// Connect resolves takeover: clean-start=false reuses any existing
	// session for this client-id by pointer, so its in-flight state,
	// offline queue, and subscription.Table entries all carry over; the
	// Activate call below then closes out that session's prior connection.
	s, sessionPresent := b.Connect(cp.ClientID, cp.ProtocolLevel, cp.CleanSession, log)
	s.CleanSession = cp.CleanSession
	s.KeepAlive = cp.KeepAlive

	var will *session.Will
	if cp.WillFlag {
		will = &session.Will{
			QoS:    cp.WillQoS,
			Retain: cp.WillRetain,
		}
		if cp.WillTopic != nil {
			will.Topic = *cp.WillTopic
		}
		if cp.WillMessage != nil {
			will.Payload = []byte(*cp.WillMessage)
		}
		will.Properties = cp.WillProperties
		if cp.WillProperties != nil && cp.WillProperties.WillDelayInterval > 0 {
			will.Delay = time.Duration(cp.WillProperties.WillDelayInterval) * time.Second
		}
	}
	s.Will = will

	if cp.ProtocolLevel == packet.MQTT5 && cp.Properties != nil && cp.Properties.ReceiveMaximum > 0 {
		s.ReceiveMaximum = cp.Properties.ReceiveMaximum
	}

	pub := &publisher{fc: fc, version: cp.ProtocolLevel}
	s.Activate(pub)

	ack := &packet.ConnackPacket{
		Version:        cp.ProtocolLevel,
		SessionPresent: sessionPresent,
		ReasonCode:     packet.ConnectionAccepted,
	}
	if cp.ProtocolLevel == packet.MQTT5 {
		caps := b.Capabilities()
		props := &packet.Properties{}
		props.SetReceiveMaximum(caps.ReceiveMaximum)
		props.SetMaximumQoS(byte(caps.MaxQoS))
		props.SetRetainAvailable(b2byte(caps.RetainAvailable))
		props.SetWildcardSubAvailable(b2byte(caps.WildcardSubAvailable))
		props.SetSubIDsAvailable(b2byte(caps.SubIDsAvailable))
		props.SetSharedSubAvailable(b2byte(caps.SharedSubAvailable))
		ack.Properties = props
	}
	if err := fc.WritePacket(ack.Encode()); err != nil {
		return
	}

	log.LogClientConnection(cp.ClientID, fc.RemoteAddr(), "connected")

	for {
		raw, err := fc.ReadPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.LogError(err, "read failed", logger.ClientID(cp.ClientID))
			}
			b.HandleUngracefulClose(ctx, s)
			log.LogClientConnection(cp.ClientID, fc.RemoteAddr(), "disconnected-ungraceful")
			return
		}

		p, err := packet.Decode(raw, cp.ProtocolLevel)
		if err != nil {
			log.LogError(err, "decode failed", logger.ClientID(cp.ClientID))
			b.HandleUngracefulClose(ctx, s)
			return
		}

		switch pkt := p.(type) {
		case *packet.PublishPacket:
			handlePublish(ctx, b, s, fc, pkt)

		case *packet.SubscribePacket:
			codes := b.HandleSubscribe(ctx, s, pkt)
			sa := &packet.SubackPacket{Version: cp.ProtocolLevel, PacketID: pkt.PacketID, ReturnCodes: codes}
			fc.WritePacket(sa.Encode())

		case *packet.UnsubscribePacket:
			codes := b.HandleUnsubscribe(s, pkt.TopicFilters)
			ua := &packet.UnsubackPacket{Version: cp.ProtocolLevel, PacketID: pkt.PacketID}
			if cp.ProtocolLevel == packet.MQTT5 {
				ua.ReasonCodes = codes
			}
			fc.WritePacket(ua.Encode())

		case *packet.PingreqPacket:
			resp := packet.CreatePingresp()
			fc.WritePacket(resp.Encode())

		case *packet.PubackPacket:
			s.HandlePubAck(pkt.PacketID)

		case *packet.PubrecPacket:
			if pubrel := s.HandlePubRec(pkt.PacketID); pubrel != nil {
				fc.WritePacket(pubrel.EncodeVersioned(cp.ProtocolLevel))
			}

		case *packet.PubrelPacket:
			s.HandlePubRel(pkt.PacketID)
			comp := &packet.PubcompPacket{}
			comp.PacketID = pkt.PacketID
			fc.WritePacket(comp.EncodeVersioned(cp.ProtocolLevel))

		case *packet.PubcompPacket:
			s.HandlePubComp(pkt.PacketID)

		case *packet.DisconnectPacket:
			b.HandleDisconnect(s)
			log.LogClientConnection(cp.ClientID, fc.RemoteAddr(), "disconnected-clean")
			return

		case *packet.AuthPacket:
			// enhanced authentication exchange is not implemented; a
			// CONNECT-time username/password is all this broker supports.

		default:
			log.LogError(nil, "unhandled packet type", logger.ClientID(cp.ClientID))
		}
	}
}

func b2byte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func handlePublish(ctx context.Context, b *broker.Broker, s *session.Session, fc FrameConn, pkt *packet.PublishPacket) {
	switch pkt.QoS {
	case packet.QoSAtMostOnce:
		b.HandlePublish(ctx, s, pkt)

	case packet.QoSAtLeastOnce:
		b.HandlePublish(ctx, s, pkt)
		if pkt.PacketID != nil {
			ack := &packet.PubackPacket{}
			ack.PacketID = *pkt.PacketID
			fc.WritePacket(ack.EncodeVersioned(s.ProtocolVersion))
		}

	case packet.QoSExactlyOnce:
		if pkt.PacketID == nil {
			return
		}
		fresh := s.HandleIncomingQoS2Publish(*pkt.PacketID, pkt.Topic, pkt.Payload, pkt.Retain)
		if fresh {
			b.HandlePublish(ctx, s, pkt)
		}
		rec := &packet.PubrecPacket{}
		rec.PacketID = *pkt.PacketID
		fc.WritePacket(rec.EncodeVersioned(s.ProtocolVersion))
	}
}
