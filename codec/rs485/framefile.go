package rs485

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aaronwong1989/gors485/comm"
)

// FrameSpec yaml 中的一帧定义，payload-hex 与 payload-text 二选一
type FrameSpec struct {
	Address       uint8  `yaml:"address"`
	MemoryAddress uint32 `yaml:"memory-address"`
	PayloadHex    string `yaml:"payload-hex"`
	PayloadText   string `yaml:"payload-text"`
	Charset       string `yaml:"charset"`
}

type frameFile struct {
	Frames []FrameSpec `yaml:"frames"`
}

// LoadFrameSpecs 读取 frames 列表
func LoadFrameSpecs(path string) ([]FrameSpec, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFrameSpecs(bts)
}

func ParseFrameSpecs(bts []byte) ([]FrameSpec, error) {
	ff := frameFile{}
	if err := yaml.Unmarshal(bts, &ff); err != nil {
		return nil, fmt.Errorf("parse frame file: %w", err)
	}
	return ff.Frames, nil
}

// Payload 解析出数据区字节
func (s FrameSpec) Payload() ([]byte, error) {
	if s.PayloadHex != "" && s.PayloadText != "" {
		return nil, fmt.Errorf("%w: both payload-hex and payload-text set", ErrInvalidPayload)
	}
	if s.PayloadHex != "" {
		h := strings.NewReplacer(" ", "", "0x", "", "0X", "", ",", "").Replace(s.PayloadHex)
		bts, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return bts, nil
	}
	if s.PayloadText != "" {
		return comm.EncodeText(s.PayloadText, s.Charset)
	}
	return nil, nil
}

func (s FrameSpec) Build() (*Frame, error) {
	payload, err := s.Payload()
	if err != nil {
		return nil, err
	}
	return NewFrame(s.Address, s.MemoryAddress, payload)
}
