package media

import (
	"math"

	"github.com/esphome/voice-kit/internal/audio"
)

// converter 将解码输出转换为协商的引擎流参数
// 声道：双声道均值合并为单声道 / 单声道复制为双声道
// 采样率：逐块线性插值重采样（引擎内部不再做任何转换）
type converter struct {
	src audio.StreamInfo
	dst audio.StreamInfo
	rem []byte // 不足一帧的残留字节
}

func newConverter(src, dst audio.StreamInfo) *converter {
	return &converter{src: src, dst: dst}
}

// convert 转换一块小端 16bit PCM，返回引擎参数下的字节流
func (c *converter) convert(p []byte) []byte {
	if c.src.Channels == c.dst.Channels && c.src.SampleRate == c.dst.SampleRate && len(c.rem) == 0 {
		return p
	}

	data := p
	if len(c.rem) > 0 {
		data = append(c.rem, p...)
		c.rem = nil
	}

	frameBytes := 2 * c.src.Channels
	whole := len(data) / frameBytes * frameBytes
	if whole < len(data) {
		c.rem = append(c.rem, data[whole:]...)
		data = data[:whole]
	}
	if len(data) == 0 {
		return nil
	}

	samples := bytesToSamples(data)

	if c.src.Channels == 2 && c.dst.Channels == 1 {
		samples = stereoToMono(samples)
	} else if c.src.Channels == 1 && c.dst.Channels == 2 {
		samples = monoToStereo(samples)
	}

	if c.src.SampleRate != c.dst.SampleRate {
		samples = resampleLinear(samples, c.src.SampleRate, c.dst.SampleRate, c.dst.Channels)
	}

	return samplesToBytes(samples)
}

func bytesToSamples(p []byte) []int16 {
	out := make([]int16, len(p)/2)
	for i := range out {
		out[i] = int16(p[i*2]) | int16(p[i*2+1])<<8
	}
	return out
}

func samplesToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// stereoToMono 左右声道取均值
func stereoToMono(in []int16) []int16 {
	out := make([]int16, len(in)/2)
	for i := range out {
		out[i] = int16((int32(in[i*2]) + int32(in[i*2+1])) / 2)
	}
	return out
}

func monoToStereo(in []int16) []int16 {
	out := make([]int16, len(in)*2)
	for i, v := range in {
		out[i*2] = v
		out[i*2+1] = v
	}
	return out
}

// resampleLinear 线性插值重采样
// 逐输出帧计算对应的输入位置并在相邻两帧间插值
// 音质适合语音/提示音场景，换取零依赖和低开销
func resampleLinear(input []int16, inputRate, outputRate, channels int) []int16 {
	if inputRate == outputRate || len(input) == 0 {
		return input
	}

	inputFrames := len(input) / channels
	if inputFrames == 0 {
		return nil
	}

	ratio := float64(inputRate) / float64(outputRate)
	outputFrames := int(math.Ceil(float64(inputFrames) / ratio))
	output := make([]int16, outputFrames*channels)

	for outFrame := 0; outFrame < outputFrames; outFrame++ {
		position := float64(outFrame) * ratio
		inFrame := int(position)
		frac := position - float64(inFrame)

		if inFrame >= inputFrames-1 {
			inFrame = inputFrames - 1
			frac = 0
		}

		for ch := 0; ch < channels; ch++ {
			s1 := float64(input[inFrame*channels+ch])
			s2 := s1
			if (inFrame+1)*channels+ch < len(input) {
				s2 = float64(input[(inFrame+1)*channels+ch])
			}
			v := s1*(1.0-frac) + s2*frac
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			output[outFrame*channels+ch] = int16(v)
		}
	}
	return output
}
