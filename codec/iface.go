package codec

// IHead 定长报文头
type IHead interface {
	Encode() []byte
	Decode([]byte) error
	String() string
}

// Codec 完整报文的编解码
type Codec interface {
	Encode() ([]byte, error)
	Decode(frame []byte) error
	String() string
}
