package main

import (
	"errors"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/panjf2000/gnet/v2"
	"golang.org/x/time/rate"

	"github.com/aaronwong1989/gors485/codec/rs485"
	"github.com/aaronwong1989/gors485/comm"
	"github.com/aaronwong1989/gors485/comm/container"
	"github.com/aaronwong1989/gors485/comm/logging"
	"github.com/aaronwong1989/gors485/comm/metrics"
	"github.com/aaronwong1989/gors485/comm/yml_config"
)

type Server struct {
	gnet.BuiltinEventEngine
	engine    gnet.Engine
	protocol  string
	address   string
	multicore bool
	pool      *ants.Pool
	conMap    sync.Map
	memory    *container.Containers
	metrics   *metrics.BusMetrics
	opts      atomic.Pointer[simOptions]
}

type simOptions struct {
	DeviceAddress  byte
	BadCrcRate     float64
	MinRespMs      int32
	MaxRespMs      int32
	MaxCons        int
	MaxPoolSize    int
	TickDuration   time.Duration
	RateLimit      float64
	RateBurst      int
	MaxFrameLength int
}

type session struct {
	limiter *rate.Limiter
}

func setDefaults(conf yml_config.YmlConfig) {
	conf.SetDefault("protocol", "tcp")
	conf.SetDefault("multicore", true)
	conf.SetDefault("device-address", 0x00)
	conf.SetDefault("bad-crc-rate", 0.0)
	conf.SetDefault("min-resp-ms", 0)
	conf.SetDefault("max-resp-ms", 0)
	conf.SetDefault("max-cons", 64)
	conf.SetDefault("max-pool-size", 256)
	conf.SetDefault("tick-duration", "30s")
	conf.SetDefault("rate-limit", 200.0)
	conf.SetDefault("rate-burst", 50)
	conf.SetDefault("max-frame-length", 1024+rs485.MinFrameLength)
}

func loadOptions(conf yml_config.YmlConfig) *simOptions {
	opts := &simOptions{
		DeviceAddress:  byte(conf.GetInt("device-address")),
		BadCrcRate:     conf.GetFloat64("bad-crc-rate"),
		MinRespMs:      conf.GetInt32("min-resp-ms"),
		MaxRespMs:      conf.GetInt32("max-resp-ms"),
		MaxCons:        conf.GetInt("max-cons"),
		MaxPoolSize:    conf.GetInt("max-pool-size"),
		TickDuration:   conf.GetDuration("tick-duration"),
		RateLimit:      conf.GetFloat64("rate-limit"),
		RateBurst:      conf.GetInt("rate-burst"),
		MaxFrameLength: conf.GetInt("max-frame-length"),
	}
	if opts.MaxFrameLength > rs485.MaxFrameLength || opts.MaxFrameLength < rs485.MinFrameLength {
		opts.MaxFrameLength = rs485.MaxFrameLength
	}
	if opts.TickDuration <= 0 {
		opts.TickDuration = 30 * time.Second
	}
	return opts
}

func StartServer(conf yml_config.YmlConfig) {
	var port int
	flag.IntVar(&port, "port", 9485, "--port 9485")
	flag.Parse()

	log.Infof("current pid is %s.", comm.SavePid("rs485sim.pid"))

	setDefaults(conf)
	opts := loadOptions(conf)
	// 定义异步工作Go程池
	pool, err := ants.NewPool(opts.MaxPoolSize, ants.WithOptions(ants.Options{
		ExpiryDuration: time.Minute, // 1 分钟内不被使用的worker会被清除
		Nonblocking:    false,
		PanicHandler: func(e interface{}) {
			log.Errorf("%v", e)
		},
	}))
	if err != nil {
		log.Errorf("create worker pool error: %v", err)
		return
	}
	defer pool.Release()

	reg := metrics.NewRegistry()
	ss := NewServer(pool, opts, metrics.NewBusMetrics(reg))
	ss.protocol = conf.GetString("protocol")
	ss.address = fmt.Sprintf(":%d", port)
	ss.multicore = conf.GetBool("multicore")

	conf.OnChange(func() {
		setDefaults(conf)
		ss.reload(loadOptions(conf))
	})
	conf.ConfigFileChangeListen()

	comm.StartMonitor(port, metrics.Handler(reg))

	err = gnet.Run(ss, ss.protocol+"://"+ss.address, gnet.WithMulticore(ss.multicore), gnet.WithTicker(true))
	log.Errorf("server(%s://%s) exits with error: %v", ss.protocol, ss.address, err)
}

func NewServer(pool *ants.Pool, opts *simOptions, m *metrics.BusMetrics) *Server {
	s := &Server{
		pool:    pool,
		memory:  container.CreateContainersFactory(),
		metrics: m,
	}
	s.opts.Store(opts)
	return s
}

// reload 替换运行参数；设备地址变更时清空旧地址的内存
func (s *Server) reload(opts *simOptions) {
	old := s.opts.Swap(opts)
	if old != nil && old.DeviceAddress != opts.DeviceAddress {
		n := s.Reset(old.DeviceAddress)
		log.Infof("[%-9s] device 0x%02X -> 0x%02X, %d memory cells cleared", "Conf", old.DeviceAddress, opts.DeviceAddress, n)
	}
	log.Infof("[%-9s] options reloaded: %+v", "Conf", *opts)
}

func (s *Server) OnBoot(eng gnet.Engine) (action gnet.Action) {
	log.Infof("[%-9s] running device 0x%02X on %s with multi-core=%t", "OnBoot", s.opts.Load().DeviceAddress, fmt.Sprintf("%s://%s", s.protocol, s.address), s.multicore)
	s.engine = eng
	return
}

func (s *Server) OnShutdown(eng gnet.Engine) {
	log.Warnf("[%-9s] shutdown server %s ...", "OnShutdown", fmt.Sprintf("%s://%s", s.protocol, s.address))
	for eng.CountConnections() > 0 {
		log.Warnf("[%-9s] active connections is %d, waiting...", "OnShutdown", eng.CountConnections())
		time.Sleep(10 * time.Millisecond)
	}
	log.Warnf("[%-9s] shutdown server %s completed!", "OnShutdown", fmt.Sprintf("%s://%s", s.protocol, s.address))
}

func (s *Server) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	opts := s.opts.Load()
	if s.countConn() >= opts.MaxCons {
		log.Warnf("[%-9s] [%v<->%v] FLOW CONTROL：connections threshold reached, closing new connection...", "OnOpen", c.RemoteAddr(), c.LocalAddr())
		return nil, gnet.Close
	}
	s.conMap.Store(c.RemoteAddr().String(), &session{limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)})
	s.metrics.Accepted.Inc()
	s.metrics.OnlineGauge.Inc()
	log.Infof("[%-9s] [%v<->%v] activeCons=%d.", "OnOpen", c.RemoteAddr(), c.LocalAddr(), s.countConn())
	return
}

func (s *Server) OnClose(c gnet.Conn, e error) (action gnet.Action) {
	if _, ok := s.conMap.LoadAndDelete(c.RemoteAddr().String()); ok {
		s.metrics.OnlineGauge.Dec()
	}
	log.Warnf("[%-9s] [%v<->%v] activeCons=%d, reason=%v.", "OnClose", c.RemoteAddr(), c.LocalAddr(), s.countConn(), e)
	return
}

func (s *Server) OnTraffic(c gnet.Conn) (action gnet.Action) {
	opts := s.opts.Load()
	for c.InboundBuffered() >= rs485.HeadLength {
		head, err := c.Peek(rs485.HeadLength)
		if err != nil {
			log.Errorf("[%-9s] decode error: %v", "OnTraffic", err)
			return gnet.Close
		}
		n, err := rs485.FrameLength(head)
		if errors.Is(err, rs485.ErrInvalidMarker) {
			// 丢弃一个字节，重新寻找起始标志
			_, _ = c.Discard(1)
			continue
		}
		if n > opts.MaxFrameLength {
			// 伪起始标志或超长帧，后移一个字节重新同步
			log.Debugf("[%-9s] [%v] frame length %d exceeds %d, resync", "OnTraffic", c.RemoteAddr(), n, opts.MaxFrameLength)
			s.resync(c)
			continue
		}
		buffered := c.InboundBuffered()
		if buffered < n {
			// 半包；缓冲区里其后已有完整帧时当前起始标志是伪的
			if buf, err := c.Peek(buffered); err == nil && rs485.SyncOffset(buf) > 0 {
				s.resync(c)
				continue
			}
			return gnet.None
		}
		if buf, err := c.Peek(n); err != nil || buf[n-1] != rs485.Marker {
			s.resync(c)
			continue
		}
		frame := comm.TakeBytes(c, n)
		if frame == nil {
			return gnet.None
		}
		s.metrics.BytesReceived.Add(float64(n))
		comm.LogHex(logging.DebugLevel, "Frame", frame)

		if v, ok := s.conMap.Load(c.RemoteAddr().String()); ok && !v.(*session).limiter.Allow() {
			log.Warnf("[%-9s] [%v<->%v] FLOW CONTROL：rate limit reached, frame dropped.", "OnTraffic", c.RemoteAddr(), c.LocalAddr())
			s.metrics.DecodeTotal.WithLabelValues("rate_limited").Inc()
			continue
		}
		s.handleFrame(c, frame)
	}
	return gnet.None
}

func (s *Server) resync(c gnet.Conn) {
	_, _ = c.Discard(1)
	s.metrics.DecodeTotal.WithLabelValues("resync").Inc()
}

func (s *Server) OnTick() (delay time.Duration, action gnet.Action) {
	log.Infof("[%-9s] %d active connections, %d memory cells.", "OnTick", s.countConn(), s.memory.Count())
	return s.opts.Load().TickDuration, gnet.None
}

func (s *Server) countConn() int {
	counter := 0
	s.conMap.Range(func(key, value interface{}) bool {
		counter++
		return true
	})
	return counter
}

func (s *Server) handleFrame(c gnet.Conn, frame []byte) {
	f, err := rs485.Decode(frame)
	s.metrics.DecodeTotal.WithLabelValues(decodeResult(err)).Inc()
	if err != nil {
		// 坏帧不应答，由主站超时重发
		log.Warnf("[%-9s] [%v] reject frame: %v", "OnTraffic", c.RemoteAddr(), err)
		return
	}
	log.Debugf("[%-9s] <<< %s", "OnTraffic", f)

	opts := s.opts.Load()
	if f.Address != opts.DeviceAddress {
		log.Debugf("[%-9s] frame for device 0x%02X ignored", "OnTraffic", f.Address)
		return
	}
	reply, kind := s.respond(f)
	_ = s.pool.Submit(func() {
		// 模拟设备处理耗时
		if opts.MaxRespMs > opts.MinRespMs {
			time.Sleep(time.Duration(comm.RandNum(opts.MinRespMs, opts.MaxRespMs)) * time.Millisecond)
		}
		data, badCrc := encodeReply(reply, opts.BadCrcRate)
		if data == nil {
			return
		}
		if badCrc {
			kind = "bad_crc"
		}
		err := c.AsyncWrite(data, func(c gnet.Conn) error {
			log.Debugf("[%-9s] >>> %s", "OnTraffic", reply)
			s.metrics.ReplyTotal.WithLabelValues(kind).Inc()
			return nil
		})
		if err != nil {
			log.Errorf("[%-9s] REPLY ERROR: %v", "OnTraffic", err)
		}
	})
}

// respond 带数据区的帧写入设备内存并回显，空数据区的帧读出该地址的内容
func (s *Server) respond(f *rs485.Frame) (*rs485.Frame, string) {
	key := memoryKey(f.Address, f.MemoryAddress)
	if len(f.Payload) > 0 {
		s.memory.Store(key, f.Payload)
		reply, _ := rs485.NewFrame(f.Address, f.MemoryAddress, f.Payload)
		return reply, "write"
	}
	var payload []byte
	if v, ok := s.memory.Get(key).([]byte); ok {
		payload = v
	}
	reply, _ := rs485.NewFrame(f.Address, f.MemoryAddress, payload)
	return reply, "read"
}

// Reset 清空某个设备地址下的全部内存
func (s *Server) Reset(address byte) int {
	return s.memory.FuzzyDelete(fmt.Sprintf("%02X:", address))
}

func memoryKey(address byte, memoryAddress uint32) string {
	return fmt.Sprintf("%02X:%08X", address, memoryAddress)
}

func encodeReply(reply *rs485.Frame, badCrcRate float64) ([]byte, bool) {
	data, err := reply.Encode()
	if err != nil {
		log.Errorf("[%-9s] encode reply error: %v", "OnTraffic", err)
		return nil, false
	}
	if badCrcRate > 0 && comm.DiceCheck(badCrcRate) {
		rs485.CorruptChecksum(data)
		return data, true
	}
	return data, false
}

func decodeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, rs485.ErrTooShort):
		return "too_short"
	case errors.Is(err, rs485.ErrLengthMismatch):
		return "length"
	case errors.Is(err, rs485.ErrInvalidMarker):
		return "marker"
	case errors.Is(err, rs485.ErrCrcMismatch):
		return "crc"
	default:
		return "error"
	}
}
