package rs485

// Crc16 CRC-16/CCITT-FALSE（多项式 0x1021，初值 0xFFFF），逐字节查表无关的移位算法
// 长度不受 255 字节限制
func Crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		x := byte(crc>>8) ^ b
		x ^= x >> 4
		crc = (crc << 8) ^ (uint16(x) << 12) ^ (uint16(x) << 5) ^ uint16(x)
	}
	return crc
}

// PayloadCrc 帧内的校验值，空数据区约定为 0x0000
func PayloadCrc(payload []byte) uint16 {
	if len(payload) == 0 {
		return 0x0000
	}
	return Crc16(payload)
}
