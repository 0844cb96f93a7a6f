package rs485

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronwong1989/gors485/codec"
)

var (
	_ codec.IHead = (*MessageHeader)(nil)
	_ codec.Codec = (*Frame)(nil)
)

var sample = []byte{
	0xFF,                   // start
	0x00,                   // address
	0x00, 0x00, 0x00, 0x00, // memory address
	0x09, 0x00, // length
	'1', '2', '3', '4', '5', '6', '7', '8', '9',
	0xB1, 0x29, // crc 0x29B1
	0xFF, // stop
}

func TestFrame_EndToEnd(t *testing.T) {
	f, err := NewFrame(0x00, 0x00000000, []byte("123456789"))
	require.NoError(t, err)
	t.Logf("%s", f)
	assert.Equal(t, uint16(0x29B1), f.Crc)

	data, err := f.Encode()
	require.NoError(t, err)
	t.Logf("\n%s", HexDump(data))
	assert.Len(t, data, 20)
	assert.Equal(t, sample, data)

	f2, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f, f2)
}

func TestNewFrame_CopiesPayload(t *testing.T) {
	payload := []byte{1, 2, 3}
	f, err := NewFrame(0x01, 0x10, payload)
	require.NoError(t, err)
	payload[0] = 0xAA
	assert.Equal(t, []byte{1, 2, 3}, f.Payload)

	data, err := f.Encode()
	require.NoError(t, err)
	f.Payload[1] = 0xBB
	assert.Equal(t, byte(2), data[HeadLength+1])
}

func TestNewFrame_TooLarge(t *testing.T) {
	_, err := NewFrame(0x01, 0, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	f, err := NewFrame(0x01, 0, make([]byte, MaxPayload))
	require.NoError(t, err)
	data, err := f.Encode()
	require.NoError(t, err)
	assert.Len(t, data, MaxFrameLength)
}

func TestFrame_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(485))
	for _, n := range []int{0, 1, 2, 9, 16, 255, 256, 1024, 4096} {
		payload := make([]byte, n)
		r.Read(payload)
		f, err := NewFrame(byte(r.Intn(256)), r.Uint32(), payload)
		require.NoError(t, err)

		data, err := Encode(f)
		require.NoError(t, err)
		assert.Equal(t, MinFrameLength+n, len(data))

		f2, err := Decode(data)
		require.NoError(t, err, "payload length %d", n)
		assert.Equal(t, f, f2)
	}
}

func TestFrame_EmptyPayload(t *testing.T) {
	f, err := NewFrame(0x05, 0xDEADBEEF, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0000), f.Crc)

	data, err := f.Encode()
	require.NoError(t, err)
	t.Logf("% x", data)
	assert.Equal(t, []byte{0xFF, 0x05, 0xEF, 0xBE, 0xAD, 0xDE, 0x00, 0x00, 0x00, 0x00, 0xFF}, data)

	f2, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f, f2)
	assert.Nil(t, f2.Payload)
}

func TestFrame_EncodeInvalidPayload(t *testing.T) {
	f := &Frame{MessageHeader: MessageHeader{Start: Marker, DataLength: 9}, Stop: Marker}
	_, err := f.Encode()
	assert.ErrorIs(t, err, ErrInvalidPayload)
	t.Logf("%v", err)

	f.Payload = []byte("1234")
	_, err = f.Encode()
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestFrame_EncodeRecomputesCrc(t *testing.T) {
	f, err := NewFrame(0x00, 0, []byte("123456789"))
	require.NoError(t, err)
	f.Crc = 0x1234

	data, err := f.Encode()
	require.NoError(t, err)
	assert.Equal(t, sample, data)
	// 编码不修改入参
	assert.Equal(t, uint16(0x1234), f.Crc)

	empty := &Frame{MessageHeader: MessageHeader{Start: Marker}, Crc: 0xFFFF, Stop: Marker}
	data, err = empty.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00}, data[HeadLength:HeadLength+2])
}

func TestDecode_Corruption(t *testing.T) {
	// 数据区与 CRC 区任意单比特翻转都必须被检出
	for i := HeadLength; i < len(sample)-1; i++ {
		for bit := 0; bit < 8; bit++ {
			data := bytes.Clone(sample)
			data[i] ^= 1 << bit
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrCrcMismatch, "byte %d bit %d", i, bit)
		}
	}
}

func TestDecode_Markers(t *testing.T) {
	data := bytes.Clone(sample)
	data[0] = 0xFE
	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrInvalidMarker)

	data = bytes.Clone(sample)
	data[len(data)-1] = 0x00
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrInvalidMarker)
}

func TestDecode_Length(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTooShort},
		{"header only", sample[:HeadLength], ErrTooShort},
		{"ten bytes", sample[:MinFrameLength-1], ErrTooShort},
		{"missing bytes", sample[:len(sample)-1], ErrLengthMismatch},
		{"trailing bytes", append(bytes.Clone(sample), 0xFF), ErrLengthMismatch},
		{"two frames", append(bytes.Clone(sample), sample...), ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFrame_DecodeKeepsReceiverOnError(t *testing.T) {
	f, err := NewFrame(0x07, 0x100, []byte{1, 2, 3})
	require.NoError(t, err)
	before := *f

	data := bytes.Clone(sample)
	CorruptChecksum(data)
	assert.ErrorIs(t, f.Decode(data), ErrCrcMismatch)
	assert.Equal(t, before, *f)
}

func TestDecode_DoesNotAlias(t *testing.T) {
	data := bytes.Clone(sample)
	f, err := Decode(data)
	require.NoError(t, err)
	data[HeadLength] = 'X'
	assert.Equal(t, []byte("123456789"), f.Payload)
}

func TestCorruptChecksum(t *testing.T) {
	data := bytes.Clone(sample)
	CorruptChecksum(data)
	assert.Equal(t, byte(0xB0), data[len(data)-TailLength])

	short := []byte{0xFF}
	CorruptChecksum(short)
	assert.Equal(t, []byte{0xFF}, short)
}

func BenchmarkFrame_Encode(b *testing.B) {
	f, _ := NewFrame(0x01, 0x1000, make([]byte, 256))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = f.Encode()
	}
}

func BenchmarkDecode(b *testing.B) {
	f, _ := NewFrame(0x01, 0x1000, make([]byte, 256))
	data, _ := f.Encode()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(data)
	}
}
