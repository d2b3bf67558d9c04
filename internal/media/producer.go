package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/esphome/voice-kit/internal/audio"
	"github.com/esphome/voice-kit/internal/logging"
)

// Config 生产阶段配置
type Config struct {
	// Info 引擎协商的目标流参数，解码输出统一转换到此参数
	Info audio.StreamInfo
	// WriteTimeout 单次向输入缓冲写入的超时，超时后检查取消并重试
	WriteTimeout time.Duration
	// HTTPTimeout 建连/响应头超时，不限制流式读取
	HTTPTimeout time.Duration
}

// DefaultConfig 返回默认生产配置
func DefaultConfig() Config {
	return Config{
		Info:         audio.DefaultStreamInfo(),
		WriteTimeout: 50 * time.Millisecond,
		HTTPTimeout:  10 * time.Second,
	}
}

// Producer 实现 audio.Producer：
// 打开音频源，解码并转换为协商的流参数，写入管道的输入缓冲
type Producer struct {
	cfg    Config
	client *http.Client
}

// NewProducer 创建生产阶段
func NewProducer(cfg Config) *Producer {
	if !cfg.Info.Valid() {
		cfg.Info = audio.DefaultStreamInfo()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 50 * time.Millisecond
	}
	return &Producer{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.HTTPTimeout,
			},
		},
	}
}

// Produce 解码 rawURL 指向的音频源并写入 dst，阻塞直到源耗尽或 ctx 取消
func (p *Producer) Produce(ctx context.Context, rawURL string, dst *audio.RingBuffer) error {
	src, name, err := p.openSource(ctx, rawURL)
	if err != nil {
		return err
	}
	defer src.Close()

	dec, err := p.newDecoderFor(rawURL, name, src)
	if err != nil {
		return err
	}
	logging.Infof("media: decoding %s: %d ch %d Hz -> %d ch %d Hz",
		name, dec.Info().Channels, dec.Info().SampleRate, p.cfg.Info.Channels, p.cfg.Info.SampleRate)

	conv := newConverter(dec.Info(), p.cfg.Info)
	buf := make([]byte, audio.TransferSamples*dec.Info().BytesPerFrame())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := dec.Read(buf)
		if n > 0 {
			if werr := p.writeAll(ctx, dst, conv.convert(buf[:n])); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode %s: %w", name, err)
		}
		if n == 0 {
			return nil
		}
	}
}

// newDecoderFor 为源选择解码器
// WebSocket 推送源承载协商参数下的裸 PCM，其余源按内容识别
func (p *Producer) newDecoderFor(rawURL, name string, src io.Reader) (Decoder, error) {
	if u, err := url.Parse(rawURL); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		return &rawPCMDecoder{r: src, info: p.cfg.Info}, nil
	}
	return NewDecoder(name, src)
}

// writeAll 把一块 PCM 完整写入输入缓冲
// 缓冲满时按 WriteTimeout 分段阻塞，期间响应取消
func (p *Producer) writeAll(ctx context.Context, dst *audio.RingBuffer, data []byte) error {
	for len(data) > 0 {
		n := dst.WriteWithoutReplacement(data, p.cfg.WriteTimeout)
		data = data[n:]
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}
