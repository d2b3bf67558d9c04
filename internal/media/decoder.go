// Package media 实现管道的生产阶段：
// 打开音频源（文件 / HTTP / WebSocket），解码为 PCM 并写入混音输入缓冲
package media

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/esphome/voice-kit/internal/audio"
)

// Decoder 将压缩音频解码为小端 16bit PCM 字节流
type Decoder interface {
	// Info 源流参数（解码后、转换前）
	Info() audio.StreamInfo
	Read(p []byte) (int, error)
}

// NewDecoder 按内容魔数识别格式并创建解码器，识别不出时回退到扩展名
func NewDecoder(name string, r io.Reader) (Decoder, error) {
	br := bufio.NewReader(r)

	magic, err := br.Peek(4)
	if err != nil && len(magic) < 4 {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}

	switch {
	case bytes.Equal(magic[:4], []byte("RIFF")):
		return newWAVDecoder(br)
	case bytes.Equal(magic[:4], []byte("OggS")):
		return newOggDecoder(br)
	case bytes.Equal(magic[:3], []byte("ID3")) || (magic[0] == 0xFF && magic[1]&0xE0 == 0xE0):
		return newMP3Decoder(br)
	}

	switch {
	case strings.HasSuffix(name, ".wav"):
		return newWAVDecoder(br)
	case strings.HasSuffix(name, ".ogg"), strings.HasSuffix(name, ".oga"):
		return newOggDecoder(br)
	case strings.HasSuffix(name, ".mp3"):
		return newMP3Decoder(br)
	}

	return nil, fmt.Errorf("unrecognized audio format for %s: %w", name, audio.ErrInvalidArgument)
}

// mp3Decoder go-mp3 固定输出 16bit 双声道小端 PCM
type mp3Decoder struct {
	dec *mp3.Decoder
}

func newMP3Decoder(r io.Reader) (*mp3Decoder, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("open mp3: %w", err)
	}
	return &mp3Decoder{dec: dec}, nil
}

func (d *mp3Decoder) Info() audio.StreamInfo {
	return audio.StreamInfo{Channels: 2, BitsPerSample: 16, SampleRate: d.dec.SampleRate()}
}

func (d *mp3Decoder) Read(p []byte) (int, error) {
	return d.dec.Read(p)
}

// wavDecoder 基于 go-audio/wav
// wav 解码需要可 Seek 的源，流式输入先整体缓冲（公告/提示音都很短）
type wavDecoder struct {
	dec  *wav.Decoder
	info audio.StreamInfo
	pcm  *goaudio.IntBuffer
}

func newWAVDecoder(r io.Reader) (*wavDecoder, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("buffer wav source: %w", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav data: %w", audio.ErrInvalidArgument)
	}

	return &wavDecoder{
		dec: dec,
		info: audio.StreamInfo{
			Channels:      int(dec.NumChans),
			BitsPerSample: 16,
			SampleRate:    int(dec.SampleRate),
		},
		pcm: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
			Data:   make([]int, 2048),
		},
	}, nil
}

func (d *wavDecoder) Info() audio.StreamInfo {
	return d.info
}

func (d *wavDecoder) Read(p []byte) (int, error) {
	want := len(p) / 2
	if want == 0 {
		return 0, nil
	}
	if want > len(d.pcm.Data) {
		want = len(d.pcm.Data)
	}

	d.pcm.Data = d.pcm.Data[:want]
	n, err := d.dec.PCMBuffer(d.pcm)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	shift := uint(0)
	if d.dec.BitDepth > 16 {
		shift = uint(d.dec.BitDepth - 16)
	}
	for i := 0; i < n; i++ {
		v := d.pcm.Data[i]
		switch {
		case d.dec.BitDepth == 8:
			// wav 的 8bit 是无符号样本
			v = (v - 128) << 8
		case d.dec.BitDepth > 16:
			v >>= shift
		}
		p[i*2] = byte(v)
		p[i*2+1] = byte(v >> 8)
	}
	return n * 2, err
}

// oggDecoder 基于 jfreymuth/oggvorbis，float32 样本钳位转 int16
type oggDecoder struct {
	dec  *oggvorbis.Reader
	tmp  []float32
	info audio.StreamInfo
}

func newOggDecoder(r io.Reader) (*oggDecoder, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open ogg vorbis: %w", err)
	}
	return &oggDecoder{
		dec:  dec,
		tmp:  make([]float32, 2048),
		info: audio.StreamInfo{Channels: dec.Channels(), BitsPerSample: 16, SampleRate: dec.SampleRate()},
	}, nil
}

func (d *oggDecoder) Info() audio.StreamInfo {
	return d.info
}

func (d *oggDecoder) Read(p []byte) (int, error) {
	want := len(p) / 2
	if want == 0 {
		return 0, nil
	}
	if want > len(d.tmp) {
		want = len(d.tmp)
	}

	n, err := d.dec.Read(d.tmp[:want])
	for i := 0; i < n; i++ {
		v := float32ToInt16(d.tmp[i])
		p[i*2] = byte(v)
		p[i*2+1] = byte(v >> 8)
	}
	if n == 0 && err == nil {
		err = io.EOF
	}
	return n * 2, err
}

func float32ToInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * 32767.0)
}

// rawPCMDecoder 透传已是协商参数的裸 PCM（WebSocket 推送源）
type rawPCMDecoder struct {
	r    io.Reader
	info audio.StreamInfo
}

func (d *rawPCMDecoder) Info() audio.StreamInfo {
	return d.info
}

func (d *rawPCMDecoder) Read(p []byte) (int, error) {
	return d.r.Read(p)
}
