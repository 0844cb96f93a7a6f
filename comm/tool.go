package comm

import (
	"bufio"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"

	"github.com/panjf2000/gnet/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/aaronwong1989/gors485/comm/logging"
)

var log = logging.GetDefaultLogger()

// TrimStr 截断到第一个 0 字节
func TrimStr(bts []byte) string {
	var i = 0
	for ; i < len(bts); i++ {
		if bts[i] == 0 {
			break
		}
	}
	return string(bts[:i])
}

// TakeBytes 消费一定字节数的数据，缓冲区不足时不消费并返回 nil
func TakeBytes(c gnet.Conn, bytes int) []byte {
	if c.InboundBuffered() < bytes {
		return nil
	}
	frame, err := c.Peek(bytes)
	if err != nil {
		log.Errorf("[%-9s] decode error: %v", "OnTraffic", err)
		return nil
	}
	// Peek 返回的切片在 Discard 后失效
	rt := make([]byte, bytes)
	copy(rt, frame)
	_, err = c.Discard(bytes)
	if err != nil {
		log.Errorf("[%-9s] decode error: %v", "OnTraffic", err)
		return nil
	}
	return rt
}

// 设备文本数据区支持的字符集
const (
	CharsetUTF8    = "utf-8"
	CharsetGB18030 = "gb18030"
	CharsetUCS2    = "ucs2"
)

func textEncoding(charset string) (encoding.Encoding, error) {
	switch strings.ToLower(charset) {
	case "", CharsetUTF8, "utf8", "ascii":
		return encoding.Nop, nil
	case CharsetGB18030, "gbk", "gb2312":
		return simplifiedchinese.GB18030, nil
	case CharsetUCS2, "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
}

// EncodeText 把文本转换为指定字符集的字节
func EncodeText(s string, charset string) ([]byte, error) {
	e, err := textEncoding(charset)
	if err != nil {
		return nil, err
	}
	bts, _, err := transform.Bytes(e.NewEncoder(), []byte(s))
	if err != nil {
		return nil, err
	}
	return bts, nil
}

// DecodeText 按指定字符集还原文本
func DecodeText(bts []byte, charset string) (string, error) {
	e, err := textEncoding(charset)
	if err != nil {
		return "", err
	}
	s, _, err := transform.Bytes(e.NewDecoder(), bts)
	if err != nil {
		return "", err
	}
	return TrimStr(s), nil
}

func LogHex(level logging.Level, model string, bts []byte) {
	msg := fmt.Sprintf("[OnTraffic] Hex %s: %x", model, bts)
	switch level {
	case logging.DebugLevel:
		log.Debug(msg)
	case logging.ErrorLevel:
		log.Error(msg)
	case logging.WarnLevel:
		log.Warn(msg)
	default:
		log.Info(msg)
	}
}

// RandNum [min, max) 内的随机数，max <= min 时返回 min
func RandNum(min, max int32) int {
	if max <= min {
		return int(min)
	}
	return rand.Intn(int(max-min)) + int(min)
}

// DiceCheck 投概率骰子，命中概率为 prob (0..1)
func DiceCheck(prob float64) bool {
	return float64(rand.Intn(10000))/10000.0 < prob
}

// SavePid 在程序执行的当前目录生成pid文件
func SavePid(f string) string {
	pid := fmt.Sprintf("%d", os.Getpid())
	file, err := os.OpenFile(f, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		log.Errorf("%v", err)
		return pid
	}

	writer := bufio.NewWriter(file)
	_, _ = writer.WriteString(pid)
	defer func(file *os.File, writer *bufio.Writer) {
		_ = writer.Flush()
		_ = file.Close()
	}(file, writer)

	return pid
}

// StartMonitor 在 port+1 上开启 pprof 与 metrics
func StartMonitor(port int, metrics http.Handler) {
	go func() {
		addr := strconv.Itoa(port + 1)
		mux := http.NewServeMux()
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
		if metrics != nil {
			mux.Handle("/metrics", metrics)
		}
		log.Infof("[%-9s] http://localhost:%s/debug/pprof/", "Monitor", addr)
		if err := http.ListenAndServe(":"+addr, mux); err != nil {
			log.Errorf("[%-9s] start monitor failed on %s: %v", "Monitor", addr, err)
		}
	}()
}
