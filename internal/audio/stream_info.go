package audio

// DefaultSampleRate 引擎默认采样率 (16 kHz)
const DefaultSampleRate = 16000

// TransferSamples 单次硬件传输单元的样本数
const TransferSamples = 512

// TransferUnits 输出缓冲中预留的传输单元数量
const TransferUnits = 4

// OutputBufferSamples 输出环形缓冲的样本容量
// 保持较小以便快速暂停/打断
const OutputBufferSamples = 8192

// StreamInfo 描述一路 PCM 流的参数
// 输出阶段启动后不可变，由生产方声明、消费方据此计算字节换算
type StreamInfo struct {
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
	SampleRate    int `json:"sample_rate"`
}

// DefaultStreamInfo 默认流参数：单声道 16bit 16kHz
func DefaultStreamInfo() StreamInfo {
	return StreamInfo{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    DefaultSampleRate,
	}
}

// BytesPerSample 单个样本占用的字节数
func (s StreamInfo) BytesPerSample() int {
	return s.BitsPerSample / 8
}

// BytesPerFrame 一帧（全部声道各一个样本）占用的字节数
func (s StreamInfo) BytesPerFrame() int {
	return s.BytesPerSample() * s.Channels
}

// TransferSize 单次硬件传输单元的字节数
func (s StreamInfo) TransferSize() int {
	return TransferSamples * s.BytesPerFrame()
}

// Valid 校验流参数是否在引擎支持范围内
func (s StreamInfo) Valid() bool {
	if s.Channels != 1 && s.Channels != 2 {
		return false
	}
	if s.BitsPerSample != 8 && s.BitsPerSample != 16 && s.BitsPerSample != 24 && s.BitsPerSample != 32 {
		return false
	}
	return s.SampleRate > 0
}
