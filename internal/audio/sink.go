package audio

// OutputSink 硬件音频输出设备的抽象
// 设备同一时刻最多被一个输出工作循环独占持有
type OutputSink interface {
	// TryLock 尝试独占设备，已被占用时返回 false
	TryLock() bool
	// Unlock 释放设备
	Unlock()
	// Configure 按流参数配置设备，启动失败属于该组件的致命错误
	Configure(info StreamInfo) error
	// Write 写入一块 PCM 数据，返回实际接受的字节数
	Write(p []byte) (int, error)
	// Silence 立即输出静音，用于欠载和硬停止时清除残留音频
	Silence()
}
