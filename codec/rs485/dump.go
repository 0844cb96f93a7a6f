package rs485

import (
	"fmt"
	"strings"
)

const bytesPerLine = 16

// HexDump 每行 16 字节，形如 "0xFF 0x00 ..."
func HexDump(b []byte) string {
	if len(b) == 0 {
		return "EMPTY DATA"
	}
	var sb strings.Builder
	sb.Grow(len(b) * 5)
	for i, v := range b {
		if i > 0 {
			if i%bytesPerLine == 0 {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		_, _ = fmt.Fprintf(&sb, "0x%02X", v)
	}
	return sb.String()
}

// Details 多行的帧字段说明，数据区附带十六进制转储
func (f *Frame) Details() string {
	var sb strings.Builder
	sb.WriteString("===> Start Frame Details: <===\n")
	_, _ = fmt.Fprintf(&sb, "Frame Size: %d\n", f.FrameLength())
	_, _ = fmt.Fprintf(&sb, "Start Byte: 0x%02X\n", f.Start)
	_, _ = fmt.Fprintf(&sb, "Device Address: 0x%02X\n", f.Address)
	_, _ = fmt.Fprintf(&sb, "Memory Address: 0x%08X\n", f.MemoryAddress)
	_, _ = fmt.Fprintf(&sb, "Data Length: 0x%04X\n", f.DataLength)
	sb.WriteString("\nByte Data:\n\n")
	sb.WriteString(HexDump(f.Payload))
	sb.WriteString("\n\n")
	_, _ = fmt.Fprintf(&sb, "CRC 16: 0x%04X\n", f.Crc)
	_, _ = fmt.Fprintf(&sb, "Stop Byte: 0x%02X\n", f.Stop)
	sb.WriteString("===> End Frame Details: <===\n")
	return sb.String()
}
