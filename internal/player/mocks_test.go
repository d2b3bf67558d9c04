package player

import (
	"context"
	"sync"
	"time"

	"github.com/esphome/voice-kit/internal/audio"
)

// mockSink 模拟 OutputSink
type mockSink struct {
	mu     sync.Mutex
	locked bool
	bytes  int
}

func newMockSink() *mockSink {
	return &mockSink{}
}

func (s *mockSink) TryLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
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

func (s *mockSink) Configure(info audio.StreamInfo) error {
	return nil
}

func (s *mockSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytes += len(p)
	return len(p), nil
}

func (s *mockSink) Silence() {}

// mockProducer 模拟生产阶段
// 每次 Produce 写入一块数据，block 为 true 时写完后持续低速产出直到取消
type mockProducer struct {
	mu    sync.Mutex
	block bool
	urls  []string
}

func newMockProducer() *mockProducer {
	return &mockProducer{}
}

func (p *mockProducer) Produce(ctx context.Context, url string, dst *audio.RingBuffer) error {
	p.mu.Lock()
	p.urls = append(p.urls, url)
	block := p.block
	p.mu.Unlock()

	chunk := make([]byte, 64)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	dst.WriteWithoutReplacement(chunk, 50*time.Millisecond)

	if !block {
		return nil
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			dst.WriteWithoutReplacement(chunk, 10*time.Millisecond)
		}
	}
}

func (p *mockProducer) producedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.urls))
	copy(out, p.urls)
	return out
}

// mockVolumeControl 模拟外部功放音量寄存器
type mockVolumeControl struct {
	mu     sync.Mutex
	volume float64
	muted  bool
}

func (c *mockVolumeControl) SetVolume(volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = volume
	return nil
}

func (c *mockVolumeControl) SetMute(mute bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = mute
	return nil
}

func (c *mockVolumeControl) snapshot() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume, c.muted
}

// waitFor 轮询直到条件满足或超时
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
