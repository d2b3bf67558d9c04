package audio

import (
	"context"
	"sync"
	"time"
)

// mockSink 模拟 OutputSink
type mockSink struct {
	mu           sync.Mutex
	locked       bool
	configured   StreamInfo
	written      []byte
	silenceCount int
	writeErr     error
	configureErr error
	lockBusy     bool
	shortWrite   bool
}

func newMockSink() *mockSink {
	return &mockSink{}
}

func (s *mockSink) TryLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockBusy || s.locked {
		return false
	}
	s.locked = true
	return true
}

func (s *mockSink) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = false
}

func (s *mockSink) Configure(info StreamInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configureErr != nil {
		return s.configureErr
	}
	s.configured = info
	return nil
}

func (s *mockSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.shortWrite && len(p) > 1 {
		s.written = append(s.written, p[:len(p)/2]...)
		return len(p) / 2, nil
	}
	s.written = append(s.written, p...)
	return len(p), nil
}

func (s *mockSink) Silence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silenceCount++
}

func (s *mockSink) getWritten() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.written))
	copy(out, s.written)
	return out
}

func (s *mockSink) getSilenceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silenceCount
}

func (s *mockSink) isLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// mockProducer 模拟生产阶段：把预置数据写入目标缓冲后返回
type mockProducer struct {
	mu       sync.Mutex
	data     []byte
	err      error
	blockCtx bool // 写完后阻塞直到 ctx 取消
	calls    int
}

func newMockProducer(data []byte) *mockProducer {
	return &mockProducer{data: data}
}

func (p *mockProducer) Produce(ctx context.Context, url string, dst *RingBuffer) error {
	p.mu.Lock()
	p.calls++
	data, err, block := p.data, p.err, p.blockCtx
	p.mu.Unlock()

	if err != nil {
		return err
	}

	remaining := data
	for len(remaining) > 0 {
		n := dst.WriteWithoutReplacement(remaining, 20*time.Millisecond)
		remaining = remaining[n:]
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *mockProducer) getCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// mockSource 模拟 PCMSource，预置数据消费完后返回 0
type mockSource struct {
	mu   sync.Mutex
	data []byte
	pos  int
}

func newMockSource(data []byte) *mockSource {
	return &mockSource{data: data}
}

func (m *mockSource) Read(p []byte, timeout time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos >= len(m.data) {
		return 0
	}
	n := copy(p, m.data[m.pos:])
	m.pos += n
	return n
}

func (m *mockSource) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data) - m.pos
}

// collectEvents 在时限内收集事件直到出现 want 类型的事件
func collectEvents(ch <-chan TaskEvent, want EventType, timeout time.Duration) []TaskEvent {
	var events []TaskEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if ev.Type == want {
				return events
			}
		case <-deadline:
			return events
		}
	}
}

// lifecycleOnly 过滤掉可丢弃的心跳事件，保留生命周期序列
func lifecycleOnly(events []TaskEvent) []EventType {
	var out []EventType
	for _, ev := range events {
		switch ev.Type {
		case EventRunning, EventIdle, EventWarning:
		default:
			out = append(out, ev.Type)
		}
	}
	return out
}

// pcm 构造小端 16bit PCM 字节流
func pcm(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// decodePCM 解出小端 16bit 样本
func decodePCM(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}
