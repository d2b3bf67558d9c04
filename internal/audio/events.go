package audio

import "time"

// QueueDepth 命令/事件通道的缓冲深度
const QueueDepth = 20

// CommandType 控制命令类型
type CommandType int

const (
	CommandStop CommandType = iota
	CommandStopGracefully
	CommandPauseMedia
	CommandResumeMedia
	CommandDuck
)

func (c CommandType) String() string {
	switch c {
	case CommandStop:
		return "Stop"
	case CommandStopGracefully:
		return "StopGracefully"
	case CommandPauseMedia:
		return "PauseMedia"
	case CommandResumeMedia:
		return "ResumeMedia"
	case CommandDuck:
		return "Duck"
	default:
		return "Unknown"
	}
}

// CommandEvent 发往某个组件命令通道的控制意图
// DuckingRatio 仅对 CommandDuck 有意义，取值 [0,1]，1 表示不衰减
type CommandEvent struct {
	Command      CommandType
	DuckingRatio float64
}

// EventType 组件生命周期事件类型
// 单个生命周期内严格单调：Starting → Started → (Running|Idle)* → Stopping → Stopped
// Warning 可在任意位置穿插
type EventType int

const (
	EventStarting EventType = iota
	EventStarted
	EventRunning
	EventIdle
	EventStopping
	EventStopped
	EventWarning
)

func (e EventType) String() string {
	switch e {
	case EventStarting:
		return "Starting"
	case EventStarted:
		return "Started"
	case EventRunning:
		return "Running"
	case EventIdle:
		return "Idle"
	case EventStopping:
		return "Stopping"
	case EventStopped:
		return "Stopped"
	case EventWarning:
		return "Warning"
	default:
		return "Unknown"
	}
}

// TaskEvent 组件通过事件通道上报的观测值
type TaskEvent struct {
	Type EventType
	Err  error
}

// sendLifecycle 阻塞投递生命周期事件，这类事件不允许丢失
func sendLifecycle(ch chan<- TaskEvent, ev TaskEvent) {
	ch <- ev
}

// sendHeartbeat 非阻塞投递 Running/Idle 心跳，通道满时丢弃
// 编排器按固定节拍消费，丢失心跳不影响状态机推导
func sendHeartbeat(ch chan<- TaskEvent, ev TaskEvent) {
	select {
	case ch <- ev:
	default:
	}
}

// SendCommand 在 timeout 内向命令通道投递命令
// 通道持续满载则放弃并返回 false，由调用方决定是否重试
func SendCommand(ch chan<- CommandEvent, cmd CommandEvent, timeout time.Duration) bool {
	select {
	case ch <- cmd:
		return true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- cmd:
		return true
	case <-timer.C:
		return false
	}
}
