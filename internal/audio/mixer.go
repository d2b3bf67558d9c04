package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/esphome/voice-kit/internal/logging"
)

// duckingHold 前台源最后一次出声后，闪避维持的时间窗
// 避免公告数据包之间的间隙引起背景音量抖动
const duckingHold = 100 * time.Millisecond

// CombineStreamer 双路混音器
// 拥有媒体/公告两路输入环形缓冲和一路输出环形缓冲
// 后台 goroutine 将两路输入按饱和加法混合写入输出，供输出工作循环消费
// 公告出声期间按闪避比率衰减媒体一路，公告停止后恢复
type CombineStreamer struct {
	name string
	info StreamInfo

	mediaIn *RingBuffer
	annIn   *RingBuffer
	out     *RingBuffer

	commands chan CommandEvent
	events   chan TaskEvent

	duckGain atomic.Int32 // Q15，应用于媒体一路
	started  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewCombineStreamer 创建混音器并分配三个环形缓冲
func NewCombineStreamer(info StreamInfo) (*CombineStreamer, error) {
	bufBytes := OutputBufferSamples * info.BytesPerFrame()

	mediaIn, err := NewRingBuffer(bufBytes)
	if err != nil {
		return nil, err
	}
	annIn, err := NewRingBuffer(bufBytes)
	if err != nil {
		return nil, err
	}
	out, err := NewRingBuffer(TransferUnits * info.TransferSize())
	if err != nil {
		return nil, err
	}

	m := &CombineStreamer{
		info:     info,
		mediaIn:  mediaIn,
		annIn:    annIn,
		out:      out,
		commands: make(chan CommandEvent, QueueDepth),
		events:   make(chan TaskEvent, QueueDepth),
	}
	m.duckGain.Store(int32(UnityGain))
	return m, nil
}

// MediaInput 媒体生产方写入的输入缓冲
func (m *CombineStreamer) MediaInput() *RingBuffer {
	return m.mediaIn
}

// AnnouncementInput 公告生产方写入的输入缓冲
func (m *CombineStreamer) AnnouncementInput() *RingBuffer {
	return m.annIn
}

// Read 从混音输出读取，实现 PCMSource
func (m *CombineStreamer) Read(p []byte, timeout time.Duration) int {
	return m.out.Read(p, timeout)
}

// Available 混音输出中待消费的字节数
func (m *CombineStreamer) Available() int {
	return m.out.Available()
}

// Start 启动混音循环，重复调用为空操作
func (m *CombineStreamer) Start(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.name = name
	m.started = true
	m.wg.Add(1)
	go m.run()
}

// Stop 请求混音循环退出并等待其结束
func (m *CombineStreamer) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if !SendCommand(m.commands, CommandEvent{Command: CommandStop}, 50*time.Millisecond) {
		logging.Warnf("CombineStreamer[%s]: command queue full, stop dropped", m.name)
	}
	m.wg.Wait()

	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
}

// SendCommand 投递控制命令（闪避/暂停/恢复）
func (m *CombineStreamer) SendCommand(cmd CommandEvent, timeout time.Duration) bool {
	return SendCommand(m.commands, cmd, timeout)
}

// Events 生命周期事件通道
func (m *CombineStreamer) Events() <-chan TaskEvent {
	return m.events
}

func (m *CombineStreamer) run() {
	defer m.wg.Done()

	sendLifecycle(m.events, TaskEvent{Type: EventStarting})

	transfer := m.info.TransferSize()
	mediaBuf := make([]byte, transfer)
	annBuf := make([]byte, transfer)
	mixBuf := make([]byte, transfer)

	paused := false
	lastAnnData := time.Time{}

	sendLifecycle(m.events, TaskEvent{Type: EventStarted})
	logging.Infof("CombineStreamer[%s]: started", m.name)

	for {
		select {
		case cmd := <-m.commands:
			switch cmd.Command {
			case CommandStop:
				sendLifecycle(m.events, TaskEvent{Type: EventStopping})
				m.out.Close()
				sendLifecycle(m.events, TaskEvent{Type: EventStopped})
				logging.Infof("CombineStreamer[%s]: stopped", m.name)
				return
			case CommandPauseMedia:
				paused = true
			case CommandResumeMedia:
				paused = false
			case CommandDuck:
				// 闪避是线性幅度比率，不走音量的 dB 表
				m.duckGain.Store(int32(GainForRatio(cmd.DuckingRatio)))
			}
		default:
		}

		// 输出空间不足一个传输单元时等一拍，绝不丢弃已混合的数据
		if m.out.Capacity()-m.out.Available() < transfer {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		annN := m.annIn.Read(annBuf, 5*time.Millisecond)
		if annN > 0 {
			lastAnnData = time.Now()
		}

		mediaN := 0
		if !paused {
			mediaN = m.mediaIn.Read(mediaBuf[:mediaReadLimit(len(mediaBuf), annN)], 5*time.Millisecond)
		}

		if annN == 0 && mediaN == 0 {
			sendHeartbeat(m.events, TaskEvent{Type: EventIdle})
			continue
		}

		ducking := time.Since(lastAnnData) < duckingHold
		n := m.mix(mixBuf, mediaBuf[:mediaN], annBuf[:annN], ducking)

		m.out.WriteWithoutReplacement(mixBuf[:n], 50*time.Millisecond)
		sendHeartbeat(m.events, TaskEvent{Type: EventRunning})
	}
}

// mix 将两路小端 16bit PCM 饱和相加写入 dst，返回混合字节数
// 某一路较短时，缺口由另一路单独填充（缺席的源贡献静音）
func (m *CombineStreamer) mix(dst, media, ann []byte, ducking bool) int {
	mediaGain := UnityGain
	if ducking {
		mediaGain = int16(m.duckGain.Load())
	}

	n := len(media)
	if len(ann) > n {
		n = len(ann)
	}

	for i := 0; i+1 < n; i += 2 {
		var acc int32
		if i+1 < len(media) {
			s := int32(int16(media[i]) | int16(media[i+1])<<8)
			if mediaGain < UnityGain {
				s = (s * int32(mediaGain)) >> 15
			}
			acc += s
		}
		if i+1 < len(ann) {
			acc += int32(int16(ann[i]) | int16(ann[i+1])<<8)
		}
		v := saturateInt16(acc)
		dst[i] = byte(v)
		dst[i+1] = byte(v >> 8)
	}
	return n
}

// mediaReadLimit 公告出声时媒体读取量与公告块对齐，否则读满整个缓冲
func mediaReadLimit(max, annN int) int {
	if annN == 0 {
		return max
	}
	return annN
}
