// Package sink 提供 OutputSink 的硬件实现
package sink

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/esphome/voice-kit/internal/audio"
	"github.com/esphome/voice-kit/internal/logging"
)

// PortAudioSink 基于 PortAudio 的硬件音频输出
// 调用方负责在进程启动时执行 portaudio.Initialize / Terminate
// 同一时刻只能被一个输出工作循环独占（TryLock / Unlock）
type PortAudioSink struct {
	locked atomic.Bool

	mu       sync.Mutex
	stream   *portaudio.Stream
	buf      []int16
	channels int
}

// NewPortAudioSink 创建未配置的输出设备
func NewPortAudioSink() *PortAudioSink {
	return &PortAudioSink{}
}

// TryLock 尝试独占设备
func (s *PortAudioSink) TryLock() bool {
	return s.locked.CompareAndSwap(false, true)
}

// Unlock 停止输出流并释放设备
func (s *PortAudioSink) Unlock() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			logging.Errorf("PortAudioSink: failed to stop stream: %v", err)
		}
		if err := stream.Close(); err != nil {
			logging.Errorf("PortAudioSink: failed to close stream: %v", err)
		}
	}
	s.locked.Store(false)
}

// Configure 按流参数打开默认输出设备
func (s *PortAudioSink) Configure(info audio.StreamInfo) error {
	if !info.Valid() || info.BitsPerSample != 16 {
		return fmt.Errorf("unsupported stream info %+v: %w", info, audio.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.channels = info.Channels
	s.buf = make([]int16, audio.TransferSamples*info.Channels)

	stream, err := portaudio.OpenDefaultStream(0, info.Channels, float64(info.SampleRate),
		audio.TransferSamples, &s.buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}
	s.stream = stream
	return nil
}

// Write 写入小端 16bit PCM
// 设备按固定传输单元消费，末尾不足一个单元的部分补零写出
func (s *PortAudioSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return 0, audio.ErrInvalidState
	}

	written := 0
	for written < len(p) {
		n := 0
		for i := range s.buf {
			off := written + n
			if off+1 < len(p) {
				s.buf[i] = int16(p[off]) | int16(p[off+1])<<8
				n += 2
			} else {
				s.buf[i] = 0
			}
		}
		if err := s.stream.Write(); err != nil {
			// 欠载在实时输出里是可接受的毛刺，不中断写入
			if err != portaudio.OutputUnderflowed {
				return written, err
			}
		}
		written += n
	}
	return written, nil
}

// Silence 输出一个传输单元的静音，清除设备中残留的音频
func (s *PortAudioSink) Silence() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return
	}
	for i := range s.buf {
		s.buf[i] = 0
	}
	if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
		logging.Debugf("PortAudioSink: silence write: %v", err)
	}
}
