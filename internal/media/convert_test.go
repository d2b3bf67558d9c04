package media

import (
	"testing"

	"github.com/esphome/voice-kit/internal/audio"
)

func samples(vals ...int16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func decode(p []byte) []int16 {
	out := make([]int16, len(p)/2)
	for i := range out {
		out[i] = int16(p[i*2]) | int16(p[i*2+1])<<8
	}
	return out
}

func info(channels, rate int) audio.StreamInfo {
	return audio.StreamInfo{Channels: channels, BitsPerSample: 16, SampleRate: rate}
}

func TestConverter_PassthroughWhenMatched(t *testing.T) {
	c := newConverter(info(1, 16000), info(1, 16000))
	in := samples(1, 2, 3)
	out := c.convert(in)
	if &out[0] != &in[0] {
		t.Fatal("matched parameters should pass the slice through")
	}
}

func TestConverter_StereoToMonoAverages(t *testing.T) {
	c := newConverter(info(2, 16000), info(1, 16000))
	out := decode(c.convert(samples(100, 200, -50, 50, 1000, 1000)))

	want := []int16{150, 0, 1000}
	if len(out) != len(want) {
		t.Fatalf("got %d samples, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestConverter_MonoToStereoDuplicates(t *testing.T) {
	c := newConverter(info(1, 16000), info(2, 16000))
	out := decode(c.convert(samples(7, -9)))

	want := []int16{7, 7, -9, -9}
	if len(out) != len(want) {
		t.Fatalf("got %d samples, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestConverter_KeepsFrameRemainder(t *testing.T) {
	c := newConverter(info(2, 16000), info(1, 16000))

	// 第一块在立体声帧中间截断
	out1 := decode(c.convert(samples(100, 200, 300)))
	if len(out1) != 1 || out1[0] != 150 {
		t.Fatalf("first chunk = %v, want [150]", out1)
	}

	// 残留的半帧与下一块拼接
	out2 := decode(c.convert(samples(500)))
	if len(out2) != 1 || out2[0] != 400 {
		t.Fatalf("second chunk = %v, want [400]", out2)
	}
}

func TestResampleLinear(t *testing.T) {
	t.Run("same rate is identity", func(t *testing.T) {
		in := []int16{1, 2, 3}
		out := resampleLinear(in, 16000, 16000, 1)
		if len(out) != 3 {
			t.Fatalf("got %d samples", len(out))
		}
	})

	t.Run("downsample halves frame count", func(t *testing.T) {
		in := make([]int16, 100)
		for i := range in {
			in[i] = int16(i * 100)
		}
		out := resampleLinear(in, 32000, 16000, 1)
		if len(out) != 50 {
			t.Fatalf("got %d frames, want 50", len(out))
		}
		// 线性插值保持单调序列单调
		for i := 1; i < len(out); i++ {
			if out[i] < out[i-1] {
				t.Fatalf("output not monotonic at %d: %d < %d", i, out[i], out[i-1])
			}
		}
	})

	t.Run("upsample doubles frame count", func(t *testing.T) {
		out := resampleLinear([]int16{0, 1000}, 8000, 16000, 1)
		if len(out) != 4 {
			t.Fatalf("got %d frames, want 4", len(out))
		}
		if out[0] != 0 {
			t.Fatalf("first sample = %d, want 0", out[0])
		}
		// 中间样本落在两端点之间
		if out[1] < 0 || out[1] > 1000 {
			t.Fatalf("interpolated sample %d outside [0,1000]", out[1])
		}
	})

	t.Run("stereo frames stay paired", func(t *testing.T) {
		in := []int16{100, -100, 200, -200, 300, -300, 400, -400}
		out := resampleLinear(in, 32000, 16000, 2)
		if len(out)%2 != 0 {
			t.Fatalf("stereo output has odd sample count %d", len(out))
		}
		for i := 0; i < len(out); i += 2 {
			if out[i] < 0 || out[i+1] > 0 {
				t.Fatalf("channels swapped at frame %d: %d, %d", i/2, out[i], out[i+1])
			}
		}
	})
}
