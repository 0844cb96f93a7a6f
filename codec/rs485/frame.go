package rs485

import (
	"encoding/binary"
	"fmt"
)

type Frame struct {
	MessageHeader
	Payload []byte // 数据区，帧独占
	Crc     uint16 // 仅对数据区计算
	Stop    byte
}

// NewFrame 构造一帧完整数据，payload 会被复制
func NewFrame(address byte, memoryAddress uint32, payload []byte) (*Frame, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidPayload, len(payload), MaxPayload)
	}
	f := &Frame{
		MessageHeader: MessageHeader{
			Start:         Marker,
			Address:       address,
			MemoryAddress: memoryAddress,
			DataLength:    uint16(len(payload)),
		},
		Stop: Marker,
	}
	if len(payload) > 0 {
		f.Payload = make([]byte, len(payload))
		copy(f.Payload, payload)
	}
	f.Crc = PayloadCrc(f.Payload)
	return f, nil
}

// Encode 序列化为线路字节。CRC 总是按数据区重新计算，不修改 f
func (f *Frame) Encode() ([]byte, error) {
	if f.DataLength > 0 && len(f.Payload) == 0 {
		return nil, fmt.Errorf("%w: data length %d but no data allocated", ErrInvalidPayload, f.DataLength)
	}
	if int(f.DataLength) != len(f.Payload) {
		return nil, fmt.Errorf("%w: data length %d, payload has %d bytes", ErrInvalidPayload, f.DataLength, len(f.Payload))
	}

	frame := make([]byte, f.FrameLength())
	f.MessageHeader.put(frame)
	index := HeadLength
	index += copy(frame[index:], f.Payload)
	binary.LittleEndian.PutUint16(frame[index:index+2], PayloadCrc(f.Payload))
	frame[index+2] = f.Stop
	return frame, nil
}

// Decode 解析并校验一帧，失败时 f 保持不变
func (f *Frame) Decode(frame []byte) error {
	if len(frame) < MinFrameLength {
		return fmt.Errorf("%w: need at least %d bytes, got %d", ErrTooShort, MinFrameLength, len(frame))
	}
	h := MessageHeader{}
	h.get(frame)
	if len(frame) != h.FrameLength() {
		return fmt.Errorf("%w: data length %d needs %d bytes, got %d", ErrLengthMismatch, h.DataLength, h.FrameLength(), len(frame))
	}

	stop := frame[len(frame)-1]
	if h.Start != Marker || stop != Marker {
		return fmt.Errorf("%w: start 0x%02X, stop 0x%02X", ErrInvalidMarker, h.Start, stop)
	}

	end := HeadLength + int(h.DataLength)
	var payload []byte
	if h.DataLength > 0 {
		payload = make([]byte, h.DataLength)
		copy(payload, frame[HeadLength:end])
	}
	crc := binary.LittleEndian.Uint16(frame[end : end+2])
	if expect := PayloadCrc(payload); crc != expect {
		return fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrCrcMismatch, crc, expect)
	}

	*f = Frame{MessageHeader: h, Payload: payload, Crc: crc, Stop: stop}
	return nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("{ Address: 0x%02X, MemoryAddress: 0x%08X, DataLength: %d, Crc: 0x%04X }",
		f.Address, f.MemoryAddress, f.DataLength, f.Crc)
}

func Encode(f *Frame) ([]byte, error) {
	return f.Encode()
}

func Decode(frame []byte) (*Frame, error) {
	f := &Frame{}
	if err := f.Decode(frame); err != nil {
		return nil, err
	}
	return f, nil
}

// CorruptChecksum 翻转已编码帧的 CRC 低位（用于测试与故障注入）
func CorruptChecksum(frame []byte) {
	if len(frame) < MinFrameLength {
		return
	}
	frame[len(frame)-TailLength] ^= 0x01
}
