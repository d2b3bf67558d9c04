package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/esphome/voice-kit/internal/logging"
)

// PCMSource 输出工作循环的数据来源
// Read 在 timeout 内返回 0..len(p) 字节，Available 为无锁活性快照
type PCMSource interface {
	Read(p []byte, timeout time.Duration) int
	Available() int
}

// WorkerState 输出工作循环的状态
type WorkerState int32

const (
	WorkerStopped WorkerState = iota
	WorkerStarting
	WorkerRunning
	WorkerStopping
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStopped:
		return "Stopped"
	case WorkerStarting:
		return "Starting"
	case WorkerRunning:
		return "Running"
	case WorkerStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// WorkerConfig StreamWorker 配置
type WorkerConfig struct {
	// Name 日志与事件中使用的名字
	Name string
	// Info 输入 PCM 流参数
	Info StreamInfo
	// SinkBits 输出设备位深，输入窄于设备时按位扩展
	SinkBits int
	// ReadTimeout 单次从上游读取的阻塞上限
	ReadTimeout time.Duration
	// IdleTimeout 连续无数据自动停机的时限，防止停滞的上游长期占用设备
	IdleTimeout time.Duration
}

// DefaultWorkerConfig 默认配置
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Name:        "speaker",
		Info:        DefaultStreamInfo(),
		SinkBits:    16,
		ReadTimeout: 10 * time.Millisecond,
		IdleTimeout: 5 * time.Minute,
	}
}

// StreamWorker 输出阶段：单消费者工作循环
// 按固定节拍从 PCMSource 取出混音后的 PCM，应用音量缩放后写入 OutputSink
// 生命周期 Stopped → Starting → Running → Stopping → Stopped
type StreamWorker struct {
	cfg    WorkerConfig
	sink   OutputSink
	source PCMSource

	commands chan CommandEvent
	events   chan TaskEvent

	gain  atomic.Int32 // Q15 音量因子，控制路写入、工作循环读取
	state atomic.Int32

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewStreamWorker 创建输出工作循环
func NewStreamWorker(sink OutputSink, source PCMSource, cfg WorkerConfig) *StreamWorker {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Millisecond
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.SinkBits == 0 {
		cfg.SinkBits = cfg.Info.BitsPerSample
	}
	w := &StreamWorker{
		cfg:      cfg,
		sink:     sink,
		source:   source,
		commands: make(chan CommandEvent, QueueDepth),
		events:   make(chan TaskEvent, QueueDepth),
	}
	w.gain.Store(int32(UnityGain))
	return w
}

// Start 启动工作循环
// 已处于 Starting/Running 时为空操作（幂等）
func (w *StreamWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := WorkerState(w.state.Load())
	if st == WorkerStarting || st == WorkerRunning {
		return
	}

	w.state.Store(int32(WorkerStarting))
	w.wg.Add(1)
	go w.run()
}

// Stop 请求停机
// graceful 为 true 时先排空缓冲数据再停机，否则立即静音并退出
func (w *StreamWorker) Stop(graceful bool) {
	if WorkerState(w.state.Load()) == WorkerStopped {
		return
	}
	cmd := CommandEvent{Command: CommandStop}
	if graceful {
		cmd.Command = CommandStopGracefully
	}
	if !SendCommand(w.commands, cmd, 50*time.Millisecond) {
		logging.Warnf("StreamWorker[%s]: command queue full, %s dropped", w.cfg.Name, cmd.Command)
	}
}

// Wait 等待工作循环完全退出
func (w *StreamWorker) Wait() {
	w.wg.Wait()
}

// SetVolume 设置 [0,1] 线性音量，下一个混音间隔生效
func (w *StreamWorker) SetVolume(volume float64) {
	w.gain.Store(int32(GainForVolume(volume)))
}

// State 当前状态快照
func (w *StreamWorker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Events 生命周期事件通道，由持有方按自身节拍排空
func (w *StreamWorker) Events() <-chan TaskEvent {
	return w.events
}

func (w *StreamWorker) run() {
	defer w.wg.Done()

	sendLifecycle(w.events, TaskEvent{Type: EventStarting})

	if err := w.setup(); err != nil {
		sendLifecycle(w.events, TaskEvent{Type: EventWarning, Err: ClassifyError(err)})
		w.state.Store(int32(WorkerStopped))
		sendLifecycle(w.events, TaskEvent{Type: EventStopped})
		return
	}

	sendLifecycle(w.events, TaskEvent{Type: EventStarted})
	w.state.Store(int32(WorkerRunning))

	w.loop()

	w.state.Store(int32(WorkerStopping))
	sendLifecycle(w.events, TaskEvent{Type: EventStopping})

	w.sink.Silence()
	w.sink.Unlock()

	w.state.Store(int32(WorkerStopped))
	sendLifecycle(w.events, TaskEvent{Type: EventStopped})
	logging.Infof("StreamWorker[%s]: stopped", w.cfg.Name)
}

func (w *StreamWorker) setup() error {
	if w.cfg.Info.BitsPerSample > w.cfg.SinkBits {
		// 不支持向更窄的位深收窄，拒绝而不是猜测截断策略
		return fmt.Errorf("stream %d bits exceeds sink %d bits: %w",
			w.cfg.Info.BitsPerSample, w.cfg.SinkBits, ErrInvalidArgument)
	}
	if !w.sink.TryLock() {
		return fmt.Errorf("output sink already locked: %w", ErrInvalidState)
	}
	if err := w.sink.Configure(w.cfg.Info); err != nil {
		w.sink.Unlock()
		return err
	}
	logging.Infof("StreamWorker[%s]: started (rate=%d, channels=%d, bits=%d)",
		w.cfg.Name, w.cfg.Info.SampleRate, w.cfg.Info.Channels, w.cfg.Info.BitsPerSample)
	return nil
}

func (w *StreamWorker) loop() {
	buf := make([]byte, w.cfg.Info.TransferSize())
	var wide []byte
	if w.cfg.Info.BitsPerSample < w.cfg.SinkBits {
		wide = make([]byte, len(buf)/w.cfg.Info.BytesPerSample()*(w.cfg.SinkBits/8))
	}

	graceful := false
	lastData := time.Now()

	for {
		select {
		case cmd := <-w.commands:
			switch cmd.Command {
			case CommandStop:
				w.sink.Silence()
				return
			case CommandStopGracefully:
				graceful = true
			}
		default:
		}

		n := w.source.Read(buf, w.cfg.ReadTimeout)
		if n > 0 {
			lastData = time.Now()
			w.write(buf[:n], wide)
			continue
		}

		// 欠载：立即输出静音，避免残留音频循环
		w.sink.Silence()
		sendHeartbeat(w.events, TaskEvent{Type: EventIdle})

		if graceful && w.source.Available() == 0 {
			return
		}
		if time.Since(lastData) > w.cfg.IdleTimeout {
			logging.Warnf("StreamWorker[%s]: no data for %s, shutting down", w.cfg.Name, w.cfg.IdleTimeout)
			return
		}
	}
}

func (w *StreamWorker) write(data []byte, wide []byte) {
	gain := int16(w.gain.Load())
	if w.cfg.Info.BitsPerSample <= 16 && gain < UnityGain {
		ApplyGainPCM(data, gain)
	}

	out := data
	if w.cfg.Info.BitsPerSample < w.cfg.SinkBits {
		out = expandPCM(data, w.cfg.Info.BitsPerSample, w.cfg.SinkBits, wide)
	}

	written, err := w.sink.Write(out)
	switch {
	case err != nil:
		sendLifecycle(w.events, TaskEvent{Type: EventWarning, Err: ClassifyError(err)})
	case written != len(out):
		sendLifecycle(w.events, TaskEvent{Type: EventWarning, Err: ErrInvalidSize})
	default:
		sendHeartbeat(w.events, TaskEvent{Type: EventRunning})
	}
}

// expandPCM 将小端 PCM 样本从 fromBits 扩展到 toBits
// 样本值左移进高位，低位补零，与硬件的按位扩展写入一致
func expandPCM(in []byte, fromBits, toBits int, out []byte) []byte {
	fromBytes := fromBits / 8
	toBytes := toBits / 8
	samples := len(in) / fromBytes
	out = out[:samples*toBytes]

	for s := 0; s < samples; s++ {
		var v int32
		for b := 0; b < fromBytes; b++ {
			v |= int32(in[s*fromBytes+b]) << (8 * b)
		}
		// 符号扩展后移位到目标宽度的高位
		v <<= 32 - 8*fromBytes
		v >>= 32 - 8*fromBytes
		v <<= 8 * (toBytes - fromBytes)
		for b := 0; b < toBytes; b++ {
			out[s*toBytes+b] = byte(v >> (8 * b))
		}
	}
	return out
}
