package rs485

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const MaxFrameLength = MinFrameLength + MaxPayload

// ScanFrames 是 bufio.Scanner 的切分函数，从字节流中切出完整帧。
// 起始标志之前的字节被丢弃；停止标志不符时后移一个字节重新同步。
// 候选帧尚未收齐而其后已有完整帧（见 SyncOffset）时，视当前起始标志为伪标志，同样后移一个字节。
// 返回的 token 不做 CRC 校验，交给 Decode 处理。
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.IndexByte(data, Marker)
	if start < 0 {
		return len(data), nil, nil
	}
	if start > 0 {
		return start, nil, nil
	}

	if len(data) < HeadLength {
		if atEOF {
			if bytes.IndexByte(data[1:], Marker) >= 0 {
				return 1, nil, nil
			}
			return 0, nil, fmt.Errorf("%w: %d trailing bytes", ErrTooShort, len(data))
		}
		return 0, nil, nil
	}
	n, err := FrameLength(data)
	if err != nil {
		return 0, nil, err
	}
	if len(data) < n {
		if SyncOffset(data) > 0 {
			return 1, nil, nil
		}
		if atEOF {
			// 流已结束，后面还有起始标志就继续尝试
			if bytes.IndexByte(data[1:], Marker) >= 0 {
				return 1, nil, nil
			}
			return 0, nil, fmt.Errorf("%w: frame needs %d bytes, got %d", ErrTooShort, n, len(data))
		}
		return 0, nil, nil
	}
	if data[n-1] != Marker {
		return 1, nil, nil
	}
	return n, data[:n], nil
}

// SyncOffset 返回 data[1:] 中第一个能切出完整、停止标志与 CRC 均正确的帧的起始标志偏移，没有时返回 -1
func SyncOffset(data []byte) int {
	for i := 1; i < len(data); i++ {
		j := bytes.IndexByte(data[i:], Marker)
		if j < 0 {
			break
		}
		i += j
		if n, err := FrameLength(data[i:]); err == nil && i+n <= len(data) && checkFrame(data[i:i+n]) {
			return i
		}
	}
	return -1
}

// checkFrame 只校验停止标志与 CRC，不分配内存
func checkFrame(frame []byte) bool {
	n := len(frame)
	if frame[n-1] != Marker {
		return false
	}
	return binary.LittleEndian.Uint16(frame[n-TailLength:n-1]) == PayloadCrc(frame[HeadLength:n-TailLength])
}

// NewScanner 按帧读取 r，缓冲区足够容纳最大帧
func NewScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxFrameLength)
	scanner.Split(ScanFrames)
	return scanner
}
