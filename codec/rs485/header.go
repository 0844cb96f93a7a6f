package rs485

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 帧格式（多字节字段一律小端序）:
//
//	start[1] | address[1] | memoryAddress[4] | length[2] | payload[N] | crc[2] | stop[1]
const (
	Marker         = byte(0xFF) // 起止标志
	HeadLength     = 8          // start + address + memoryAddress + length
	TailLength     = 3          // crc + stop
	MinFrameLength = HeadLength + TailLength
	MaxPayload     = 0xFFFF
)

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrTooShort       = errors.New("frame too short")
	ErrLengthMismatch = errors.New("frame length mismatch")
	ErrCrcMismatch    = errors.New("crc mismatch")
	ErrInvalidMarker  = errors.New("invalid marker")
)

type MessageHeader struct {
	Start         byte
	Address       byte
	MemoryAddress uint32
	DataLength    uint16
}

func (header *MessageHeader) Encode() []byte {
	frame := make([]byte, HeadLength)
	header.put(frame)
	return frame
}

func (header *MessageHeader) put(frame []byte) {
	frame[0] = header.Start
	frame[1] = header.Address
	binary.LittleEndian.PutUint32(frame[2:6], header.MemoryAddress)
	binary.LittleEndian.PutUint16(frame[6:8], header.DataLength)
}

// Decode 只解析报文头，不校验起始标志
func (header *MessageHeader) Decode(frame []byte) error {
	if len(frame) < HeadLength {
		return fmt.Errorf("%w: need %d header bytes, got %d", ErrTooShort, HeadLength, len(frame))
	}
	header.get(frame)
	return nil
}

func (header *MessageHeader) get(frame []byte) {
	header.Start = frame[0]
	header.Address = frame[1]
	header.MemoryAddress = binary.LittleEndian.Uint32(frame[2:6])
	header.DataLength = binary.LittleEndian.Uint16(frame[6:8])
}

// FrameLength 帧在线路上的总长度
func (header *MessageHeader) FrameLength() int {
	return MinFrameLength + int(header.DataLength)
}

func (header *MessageHeader) String() string {
	return fmt.Sprintf("{ Start: 0x%02X, Address: 0x%02X, MemoryAddress: 0x%08X, DataLength: %d }",
		header.Start, header.Address, header.MemoryAddress, header.DataLength)
}

// FrameLength 根据流中的前 HeadLength 个字节计算整帧长度
func FrameLength(head []byte) (int, error) {
	h := MessageHeader{}
	if err := h.Decode(head); err != nil {
		return 0, err
	}
	if h.Start != Marker {
		return 0, fmt.Errorf("%w: start byte 0x%02X", ErrInvalidMarker, h.Start)
	}
	return h.FrameLength(), nil
}
