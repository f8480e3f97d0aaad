package packet

import "github.com/pyr33x/goqtt/pkg/er"

type PingreqPacket struct {
	Raw []byte
}

type PingrespPacket struct{}

func (pp *PingreqPacket) Type() PacketType { return PINGREQ }

func (pp *PingreqPacket) Parse(raw []byte) error {
	if len(raw) != 2 {
		return &er.Err{Context: "Pingreq, Packet Length", Message: er.ErrInvalidPacketLength}
	}
	pp.Raw = raw

	if PacketType(raw[0]&0xF0) != PINGREQ {
		return &er.Err{Context: "Pingreq", Message: er.ErrInvalidPingreqPacket}
	}
	if raw[0]&0x0F != 0x00 {
		return &er.Err{Context: "Pingreq, Fixed Header", Message: er.ErrInvalidPingreqFlags}
	}
	if raw[1] != 0x00 {
		return &er.Err{Context: "Pingreq, Remaining Length", Message: er.ErrInvalidPingreqLength}
	}

	return nil
}

func (pp *PingreqPacket) Encode() []byte {
	return []byte{byte(PINGREQ), 0x00}
}

func (pp *PingrespPacket) Type() PacketType { return PINGRESP }

func (pp *PingrespPacket) Parse(raw []byte) error {
	if len(raw) != 2 {
		return &er.Err{Context: "Pingresp, Packet Length", Message: er.ErrInvalidPacketLength}
	}
	if PacketType(raw[0]&0xF0) != PINGRESP {
		return &er.Err{Context: "Pingresp", Message: er.ErrInvalidPingrespPacket}
	}
	if raw[0]&0x0F != 0x00 {
		return &er.Err{Context: "Pingresp, Fixed Header", Message: er.ErrInvalidPingrespFlags}
	}
	if raw[1] != 0x00 {
		return &er.Err{Context: "Pingresp, Remaining Length", Message: er.ErrInvalidPingrespLength}
	}
	return nil
}

// CreatePingresp builds the broker's reply to PINGREQ.
func CreatePingresp() *PingrespPacket {
	return &PingrespPacket{}
}

func (p *PingrespPacket) Encode() []byte {
	return []byte{byte(PINGRESP), 0x00}
}
