package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/aaronwong1989/gors485/codec/rs485"
	"github.com/aaronwong1989/gors485/comm"
	"github.com/aaronwong1989/gors485/comm/logging"
)

var log = logging.GetDefaultLogger()

type options struct {
	address uint
	memory  string
	data    string
	hexData string
	charset string
	file    string
	send    string
	timeout time.Duration
	verify  bool
}

func main() {
	opts := options{}
	flag.UintVar(&opts.address, "addr", 0x00, "device address (0..255)")
	flag.StringVar(&opts.memory, "mem", "0x00000000", "memory address")
	flag.StringVar(&opts.data, "data", "123456789", "payload text")
	flag.StringVar(&opts.hexData, "hex", "", "payload as hex, overrides -data")
	flag.StringVar(&opts.charset, "charset", comm.CharsetUTF8, "payload text charset: utf-8 | gb18030 | ucs2")
	flag.StringVar(&opts.file, "file", "", "yaml frame file, overrides -addr/-mem/-data")
	flag.StringVar(&opts.send, "send", "", "simulator address host:port, empty = dump only")
	flag.DurationVar(&opts.timeout, "timeout", 3*time.Second, "reply timeout when sending")
	flag.BoolVar(&opts.verify, "verify", true, "decode the encoded buffer again")
	flag.Parse()

	frames, err := buildFrames(opts)
	if err != nil {
		log.Errorf("[%-9s] build frame error: %v", "Main", err)
		os.Exit(1)
	}

	for _, f := range frames {
		if err = dumpFrame(os.Stdout, f, opts.verify); err != nil {
			log.Errorf("[%-9s] %s: %v", "Main", f, err)
			os.Exit(1)
		}
	}

	if opts.send == "" {
		return
	}
	conn, err := net.DialTimeout("tcp", opts.send, opts.timeout)
	if err != nil {
		log.Errorf("[%-9s] dial %s error: %v", "Main", opts.send, err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	replies, err := exchange(conn, frames, opts.timeout)
	charset := ""
	if opts.file == "" && opts.hexData == "" {
		charset = opts.charset
	}
	for _, r := range replies {
		printReply(os.Stdout, r, charset)
	}
	if err != nil {
		log.Errorf("[%-9s] exchange with %s error: %v", "Main", opts.send, err)
		os.Exit(1)
	}
}

func buildFrames(opts options) ([]*rs485.Frame, error) {
	if opts.file != "" {
		specs, err := rs485.LoadFrameSpecs(opts.file)
		if err != nil {
			return nil, err
		}
		frames := make([]*rs485.Frame, 0, len(specs))
		for i, s := range specs {
			f, err := s.Build()
			if err != nil {
				return nil, fmt.Errorf("frame #%d: %w", i, err)
			}
			frames = append(frames, f)
		}
		return frames, nil
	}

	if opts.address > 0xFF {
		return nil, fmt.Errorf("device address %d out of range", opts.address)
	}
	mem, err := strconv.ParseUint(opts.memory, 0, 32)
	if err != nil {
		return nil, fmt.Errorf("memory address: %w", err)
	}
	spec := rs485.FrameSpec{
		Address:       uint8(opts.address),
		MemoryAddress: uint32(mem),
		PayloadHex:    opts.hexData,
		Charset:       opts.charset,
	}
	if opts.hexData == "" {
		spec.PayloadText = opts.data
	}
	f, err := spec.Build()
	if err != nil {
		return nil, err
	}
	return []*rs485.Frame{f}, nil
}

// dumpFrame 打印帧字段与线路字节，verify 时再解码一次比对
func dumpFrame(w io.Writer, f *rs485.Frame, verify bool) error {
	_, _ = fmt.Fprintf(w, "\n%s\n", f.Details())
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Frame Data:\n\n%s\n\n", rs485.HexDump(data))
	if !verify {
		return nil
	}
	f2, err := rs485.Decode(data)
	if err != nil {
		return err
	}
	if f2.MessageHeader != f.MessageHeader || !bytes.Equal(f2.Payload, f.Payload) {
		return fmt.Errorf("decoded frame %s differs from %s", f2, f)
	}
	log.Debugf("[%-9s] verified %s", "Main", f2)
	return nil
}

// printReply 打印应答帧；charset 非空时按该字符集还原数据区文本
func printReply(w io.Writer, r *rs485.Frame, charset string) {
	_, _ = fmt.Fprintf(w, "Reply:\n%s\n", r.Details())
	if charset == "" || len(r.Payload) == 0 {
		return
	}
	text, err := comm.DecodeText(r.Payload, charset)
	if err != nil {
		log.Warnf("[%-9s] decode reply text as %s error: %v", "Main", charset, err)
		return
	}
	_, _ = fmt.Fprintf(w, "Reply Text: %s\n", text)
}

// exchange 逐帧发送并等待一帧应答
func exchange(conn net.Conn, frames []*rs485.Frame, timeout time.Duration) ([]*rs485.Frame, error) {
	scanner := rs485.NewScanner(conn)
	replies := make([]*rs485.Frame, 0, len(frames))
	for _, f := range frames {
		data, err := f.Encode()
		if err != nil {
			return replies, err
		}
		_ = conn.SetDeadline(time.Now().Add(timeout))
		if _, err = conn.Write(data); err != nil {
			return replies, err
		}
		log.Infof("[%-9s] >>> %s", "Send", f)

		if !scanner.Scan() {
			if err = scanner.Err(); err == nil {
				err = io.EOF
			}
			return replies, err
		}
		reply, err := rs485.Decode(scanner.Bytes())
		if err != nil {
			return replies, err
		}
		log.Infof("[%-9s] <<< %s", "Send", reply)
		replies = append(replies, reply)
	}
	return replies, nil
}
