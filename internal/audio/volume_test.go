package audio

import "testing"

func TestGainForVolume(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		want   int16
	}{
		{"silence", 0.0, 0},
		{"full", 1.0, 32767},
		{"half maps to index 50", 0.5, 1946},
		{"below range clamps", -0.5, 0},
		{"above range clamps", 1.5, 32767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GainForVolume(tt.volume); got != tt.want {
				t.Fatalf("GainForVolume(%v) = %d, want %d", tt.volume, got, tt.want)
			}
		})
	}
}

func TestGainForVolume_Monotonic(t *testing.T) {
	prev := int16(-1)
	for i := 0; i <= 100; i++ {
		g := GainForVolume(float64(i) / 100)
		if g < prev {
			t.Fatalf("gain decreased at volume %d%%: %d < %d", i, g, prev)
		}
		prev = g
	}
}

func TestGainForRatio(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  int16
	}{
		{"zero", 0.0, 0},
		{"full", 1.0, 32767},
		{"half is linear half", 0.5, 16384},
		{"quarter is linear quarter", 0.25, 8192},
		{"below range clamps", -0.5, 0},
		{"above range clamps", 1.5, 32767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GainForRatio(tt.ratio); got != tt.want {
				t.Fatalf("GainForRatio(%v) = %d, want %d", tt.ratio, got, tt.want)
			}
		})
	}
}

func TestApplyGain(t *testing.T) {
	t.Run("unity is identity", func(t *testing.T) {
		samples := []int16{-32768, -100, 0, 100, 32767}
		want := append([]int16(nil), samples...)
		ApplyGain(samples, UnityGain)
		for i := range samples {
			if samples[i] != want[i] {
				t.Fatalf("sample %d changed at unity: %d -> %d", i, want[i], samples[i])
			}
		}
	})

	t.Run("zero gain silences", func(t *testing.T) {
		samples := []int16{-32768, -100, 100, 32767}
		ApplyGain(samples, 0)
		for i, s := range samples {
			if s != 0 {
				t.Fatalf("sample %d = %d, want 0", i, s)
			}
		}
	})

	t.Run("half-scale gain", func(t *testing.T) {
		samples := []int16{1000, -1000}
		ApplyGain(samples, 16384) // 0.5 in Q15
		if samples[0] != 500 {
			t.Fatalf("positive sample = %d, want 500", samples[0])
		}
		if samples[1] != -500 {
			t.Fatalf("negative sample = %d, want -500", samples[1])
		}
	})
}

func TestApplyGainPCM(t *testing.T) {
	buf := pcm(1000, -1000, 32767)
	ApplyGainPCM(buf, 16384)

	got := decodePCM(buf)
	want := []int16{500, -500, 16383}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSaturateInt16(t *testing.T) {
	if got := saturateInt16(40000); got != 32767 {
		t.Fatalf("positive overflow = %d, want 32767", got)
	}
	if got := saturateInt16(-40000); got != -32768 {
		t.Fatalf("negative overflow = %d, want -32768", got)
	}
	if got := saturateInt16(123); got != 123 {
		t.Fatalf("in-range value = %d, want 123", got)
	}
}
