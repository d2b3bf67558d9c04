// Package player 实现顶层编排器：
// 把外部控制调用序列化为内部命令事件，按固定节拍轮询各组件的状态事件，
// 推导对外发布的播放器状态
package player

import "github.com/esphome/voice-kit/internal/audio"

// State 对外发布的播放器状态
// 推导优先级：公告播放 > 暂停 > 媒体播放 > 空闲
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateAnnouncing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateAnnouncing:
		return "Announcing"
	default:
		return "Unknown"
	}
}

// PipelineState 从管道事件流推导的管道状态
type PipelineState int

const (
	PipelineStopped PipelineState = iota
	PipelineStarting
	PipelineStarted
	PipelinePlaying
	PipelineIdle
	PipelineStopping
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStopped:
		return "Stopped"
	case PipelineStarting:
		return "Starting"
	case PipelineStarted:
		return "Started"
	case PipelinePlaying:
		return "Playing"
	case PipelineIdle:
		return "Idle"
	case PipelineStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// applyEvent 按事件更新管道状态，WARNING 不改变状态
func (s PipelineState) applyEvent(ev audio.TaskEvent) PipelineState {
	switch ev.Type {
	case audio.EventStarting:
		return PipelineStarting
	case audio.EventStarted:
		return PipelineStarted
	case audio.EventRunning:
		return PipelinePlaying
	case audio.EventIdle:
		return PipelineIdle
	case audio.EventStopping:
		return PipelineStopping
	case audio.EventStopped:
		return PipelineStopped
	}
	return s
}

// TransportCommand 外部传输控制命令
type TransportCommand int

const (
	TransportPlay TransportCommand = iota
	TransportPause
	TransportStop
	TransportToggle
	TransportMute
	TransportUnmute
	TransportVolumeUp
	TransportVolumeDown
)

func (c TransportCommand) String() string {
	switch c {
	case TransportPlay:
		return "Play"
	case TransportPause:
		return "Pause"
	case TransportStop:
		return "Stop"
	case TransportToggle:
		return "Toggle"
	case TransportMute:
		return "Mute"
	case TransportUnmute:
		return "Unmute"
	case TransportVolumeUp:
		return "VolumeUp"
	case TransportVolumeDown:
		return "VolumeDown"
	default:
		return "Unknown"
	}
}

// VolumeControl 外部功放的音量/静音寄存器接口
// 为 nil 时音量与静音全部由软件增益实现
type VolumeControl interface {
	SetVolume(volume float64) error
	SetMute(mute bool) error
}

// commandKind 入站命令类别
type commandKind int

const (
	cmdNewSource commandKind = iota
	cmdVolume
	cmdTransport
	cmdDucking
)

// command 编排器入站命令队列的元素
type command struct {
	kind         commandKind
	url          string
	announcement bool
	volume       float64
	transport    TransportCommand
	ratio        float64
}
