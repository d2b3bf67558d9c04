package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/esphome/voice-kit/internal/logging"
)

// PipelineType 管道绑定的混音输入槽位
type PipelineType int

const (
	PipelineMedia PipelineType = iota
	PipelineAnnouncement
)

func (t PipelineType) String() string {
	if t == PipelineAnnouncement {
		return "announcement"
	}
	return "media"
}

// Producer 生产阶段（解码器）接口
// Produce 打开 url 指向的音频源，把符合协商流参数的 PCM 写入 dst
// 阻塞直到源耗尽、出错或 ctx 取消
type Producer interface {
	Produce(ctx context.Context, url string, dst *RingBuffer) error
}

// pipelineState 内部状态，外部派生状态由持有方从事件流推导
type pipelineState int32

const (
	pipelineStopped pipelineState = iota
	pipelineStarting
	pipelineRunning
	pipelineStopping
)

// Pipeline 将一个生产阶段绑定到混音器的一个输入槽位
// 状态机 Stopped → Starting → Started → (Playing|Idle)* → Stopping → Stopped
// 停机保证：生产阶段完全停止且输入缓冲排空重置之后才上报 Stopped
type Pipeline struct {
	typ      PipelineType
	producer Producer
	dst      *RingBuffer

	commands chan CommandEvent
	events   chan TaskEvent

	state  atomic.Int32
	cancel context.CancelFunc
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// NewPipeline 创建绑定到 dst 输入槽位的管道
func NewPipeline(typ PipelineType, producer Producer, dst *RingBuffer) *Pipeline {
	return &Pipeline{
		typ:      typ,
		producer: producer,
		dst:      dst,
		commands: make(chan CommandEvent, QueueDepth),
		events:   make(chan TaskEvent, QueueDepth),
	}
}

// Start 从 Stopped 状态启动管道播放 url
// 其余状态下调用返回 ErrInvalidState，由调用方在观察到 Stopped 后重试
func (p *Pipeline) Start(url, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pipelineState(p.state.Load()) != pipelineStopped {
		return fmt.Errorf("pipeline %s not stopped: %w", label, ErrInvalidState)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.state.Store(int32(pipelineStarting))

	p.wg.Add(1)
	go p.run(ctx, url, label)
	return nil
}

// SendCommand 投递 Stop/StopGracefully，对已停止的管道为空操作
func (p *Pipeline) SendCommand(cmd CommandEvent, timeout time.Duration) bool {
	if pipelineState(p.state.Load()) == pipelineStopped {
		return true
	}
	return SendCommand(p.commands, cmd, timeout)
}

// Events 生命周期事件通道
func (p *Pipeline) Events() <-chan TaskEvent {
	return p.events
}

// Stopped 管道是否处于终止状态
func (p *Pipeline) Stopped() bool {
	return pipelineState(p.state.Load()) == pipelineStopped
}

func (p *Pipeline) run(ctx context.Context, url, label string) {
	defer p.wg.Done()

	sendLifecycle(p.events, TaskEvent{Type: EventStarting})
	logging.Infof("Pipeline[%s]: starting %s", label, url)

	startMark := p.dst.TotalWritten()
	produceDone := make(chan error, 1)
	go func() {
		produceDone <- p.producer.Produce(ctx, url, p.dst)
	}()

	producing := true
	graceful := false
	started := false

	startTicker := time.NewTicker(5 * time.Millisecond)
	for !started {
		select {
		case cmd := <-p.commands:
			switch cmd.Command {
			case CommandStop:
				startTicker.Stop()
				p.teardown(producing, produceDone, label)
				return
			case CommandStopGracefully:
				graceful = true
			}
		case err := <-produceDone:
			producing = false
			if err != nil && !errors.Is(err, context.Canceled) {
				sendLifecycle(p.events, TaskEvent{Type: EventWarning, Err: ClassifyError(err)})
			}
			// 从未产出任何数据就结束：空源或启动失败
			if p.dst.TotalWritten() == startMark {
				startTicker.Stop()
				p.teardown(false, nil, label)
				return
			}
			started = true
		case <-startTicker.C:
			if p.dst.TotalWritten() > startMark {
				started = true
			}
		}
	}
	startTicker.Stop()

	sendLifecycle(p.events, TaskEvent{Type: EventStarted})
	p.state.Store(int32(pipelineRunning))

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	doneCh := produceDone
	if !producing {
		doneCh = nil
	}

	for {
		select {
		case cmd := <-p.commands:
			switch cmd.Command {
			case CommandStop:
				p.teardown(producing, produceDone, label)
				return
			case CommandStopGracefully:
				graceful = true
			}
		case err := <-doneCh:
			producing = false
			doneCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				sendLifecycle(p.events, TaskEvent{Type: EventWarning, Err: ClassifyError(err)})
			}
		case <-ticker.C:
			if p.dst.Available() > 0 {
				sendHeartbeat(p.events, TaskEvent{Type: EventRunning})
			} else {
				sendHeartbeat(p.events, TaskEvent{Type: EventIdle})
				// 源耗尽且缓冲排空：正常播放结束
				if !producing || graceful {
					p.teardown(false, nil, label)
					return
				}
			}
		}
	}
}

// teardown 停止生产阶段、排空并重置输入缓冲，最后上报 Stopped
// producing 为 true 时等待生产 goroutine 真正退出，避免新一轮 Start 与其竞争缓冲
func (p *Pipeline) teardown(producing bool, produceDone chan error, label string) {
	p.state.Store(int32(pipelineStopping))
	sendLifecycle(p.events, TaskEvent{Type: EventStopping})

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	if producing && produceDone != nil {
		<-produceDone
	}
	p.dst.Reset()

	p.state.Store(int32(pipelineStopped))
	sendLifecycle(p.events, TaskEvent{Type: EventStopped})
	logging.Infof("Pipeline[%s]: stopped", label)
}
