package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestCombineStreamer_MixAddsAndSaturates(t *testing.T) {
	m, err := NewCombineStreamer(DefaultStreamInfo())
	if err != nil {
		t.Fatalf("NewCombineStreamer: %v", err)
	}

	tests := []struct {
		name  string
		media []int16
		ann   []int16
		want  []int16
	}{
		{"simple sum", []int16{100, -200}, []int16{50, 50}, []int16{150, -150}},
		{"positive saturation", []int16{30000}, []int16{30000}, []int16{32767}},
		{"negative saturation", []int16{-30000}, []int16{-30000}, []int16{-32768}},
		{"missing source contributes silence", []int16{500, 600}, []int16{10}, []int16{510, 600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, len(tt.want)*2)
			n := m.mix(dst, pcm(tt.media...), pcm(tt.ann...), false)
			if n != len(tt.want)*2 {
				t.Fatalf("mix returned %d bytes, want %d", n, len(tt.want)*2)
			}
			got := decodePCM(dst[:n])
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("sample %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCombineStreamer_DuckingAttenuatesMediaOnly(t *testing.T) {
	m, err := NewCombineStreamer(DefaultStreamInfo())
	if err != nil {
		t.Fatalf("NewCombineStreamer: %v", err)
	}
	m.duckGain.Store(16384) // 0.5 in Q15

	dst := make([]byte, 2)
	m.mix(dst, pcm(10000), pcm(1000), true)
	if got := decodePCM(dst)[0]; got != 6000 {
		t.Fatalf("ducked mix = %d, want 5000+1000", got)
	}

	// 闪避释放后媒体恢复全量
	m.mix(dst, pcm(10000), pcm(1000), false)
	if got := decodePCM(dst)[0]; got != 11000 {
		t.Fatalf("undocked mix = %d, want 11000", got)
	}
}

func TestCombineStreamer_DuckingRatioIsLinear(t *testing.T) {
	m, err := NewCombineStreamer(DefaultStreamInfo())
	if err != nil {
		t.Fatalf("NewCombineStreamer: %v", err)
	}
	m.Start("test-mixer")
	defer m.Stop()

	if !m.SendCommand(CommandEvent{Command: CommandDuck, DuckingRatio: 0.5}, 100*time.Millisecond) {
		t.Fatal("duck command dropped")
	}

	// 两路各喂一个恒定音，保持输入缓冲始终有数据
	done := make(chan struct{})
	defer close(done)
	feed := func(rb *RingBuffer, sample int16) {
		chunk := make([]int16, 64)
		for i := range chunk {
			chunk[i] = sample
		}
		data := pcm(chunk...)
		go func() {
			for {
				select {
				case <-done:
					return
				default:
					rb.WriteWithoutReplacement(data, 10*time.Millisecond)
				}
			}
		}()
	}
	feed(m.MediaInput(), 10000)
	feed(m.AnnouncementInput(), 1000)

	out := make([]byte, 4096)
	read := 0
	deadline := time.Now().Add(2 * time.Second)
	for read < len(out) && time.Now().Before(deadline) {
		read += m.Read(out[read:], 50*time.Millisecond)
	}
	samples := decodePCM(out[:read])

	// 稳态下混音幅度应为 ann + 0.5*media = 1000 + 5000
	run := 0
	for _, s := range samples {
		if s == 6000 {
			run++
			if run >= 32 {
				return
			}
		} else {
			run = 0
		}
	}
	head := samples
	if len(head) > 16 {
		head = head[:16]
	}
	t.Fatalf("no steady ducked mix of 6000 in %d samples, head %v", len(samples), head)
}

func TestCombineStreamer_EndToEnd(t *testing.T) {
	m, err := NewCombineStreamer(DefaultStreamInfo())
	if err != nil {
		t.Fatalf("NewCombineStreamer: %v", err)
	}
	m.Start("test-mixer")
	defer m.Stop()

	data := pcm(1, 2, 3, 4, 5, 6, 7, 8)
	if n := m.MediaInput().WriteWithoutReplacement(data, 100*time.Millisecond); n != len(data) {
		t.Fatalf("write = %d, want %d", n, len(data))
	}

	out := make([]byte, len(data))
	read := 0
	deadline := time.Now().Add(time.Second)
	for read < len(data) && time.Now().Before(deadline) {
		read += m.Read(out[read:], 50*time.Millisecond)
	}
	if read != len(data) {
		t.Fatalf("read %d bytes of %d", read, len(data))
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("mixed output %v, want passthrough %v", decodePCM(out), decodePCM(data))
	}
}

func TestCombineStreamer_PauseGatesMediaWithoutDiscard(t *testing.T) {
	m, err := NewCombineStreamer(DefaultStreamInfo())
	if err != nil {
		t.Fatalf("NewCombineStreamer: %v", err)
	}
	m.Start("test-mixer")
	defer m.Stop()

	if !m.SendCommand(CommandEvent{Command: CommandPauseMedia}, 100*time.Millisecond) {
		t.Fatal("pause command dropped")
	}
	time.Sleep(30 * time.Millisecond)

	data := pcm(11, 22, 33, 44)
	m.MediaInput().WriteWithoutReplacement(data, 100*time.Millisecond)

	// 暂停期间媒体数据不被消费
	out := make([]byte, len(data))
	if n := m.Read(out, 100*time.Millisecond); n != 0 {
		t.Fatalf("read %d bytes while paused, want 0", n)
	}
	if m.MediaInput().Available() != len(data) {
		t.Fatalf("paused media buffer = %d, want %d intact", m.MediaInput().Available(), len(data))
	}

	if !m.SendCommand(CommandEvent{Command: CommandResumeMedia}, 100*time.Millisecond) {
		t.Fatal("resume command dropped")
	}

	read := 0
	deadline := time.Now().Add(time.Second)
	for read < len(data) && time.Now().Before(deadline) {
		read += m.Read(out[read:], 50*time.Millisecond)
	}
	if !bytes.Equal(out[:read], data) {
		t.Fatalf("data after resume = %v, want %v", decodePCM(out[:read]), decodePCM(data))
	}
}

func TestCombineStreamer_AnnouncementBypassesPause(t *testing.T) {
	m, err := NewCombineStreamer(DefaultStreamInfo())
	if err != nil {
		t.Fatalf("NewCombineStreamer: %v", err)
	}
	m.Start("test-mixer")
	defer m.Stop()

	m.SendCommand(CommandEvent{Command: CommandPauseMedia}, 100*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	data := pcm(7, 8, 9, 10)
	m.AnnouncementInput().WriteWithoutReplacement(data, 100*time.Millisecond)

	out := make([]byte, len(data))
	read := 0
	deadline := time.Now().Add(time.Second)
	for read < len(data) && time.Now().Before(deadline) {
		read += m.Read(out[read:], 50*time.Millisecond)
	}
	if read != len(data) {
		t.Fatalf("announcement blocked by media pause: read %d of %d", read, len(data))
	}
}
