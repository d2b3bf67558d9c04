package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/esphome/voice-kit/internal/audio"
	"github.com/esphome/voice-kit/internal/logging"
)

// 换源时的停止-重试-启动协议参数
// 旧管道停止前 Start 会返回无效状态，按固定间隔重试直到其上报 Stopped
const (
	annRetryInterval   = 20 * time.Millisecond
	mediaRetryInterval = 60 * time.Millisecond
	sourceRetryCount   = 3
)

// Config 编排器配置
type Config struct {
	// Info 引擎协商的流参数
	Info audio.StreamInfo
	// PollInterval 轮询节拍
	PollInterval time.Duration
	// CommandTimeout 入站命令入队的阻塞上限，超时后命令被丢弃
	CommandTimeout time.Duration
	// Volume 初始线性音量 [0,1]
	Volume float64
	// DuckingRatio 公告播放期间媒体一路的初始闪避比率 [0,1]
	DuckingRatio float64
}

// DefaultConfig 默认编排器配置
func DefaultConfig() Config {
	return Config{
		Info:           audio.DefaultStreamInfo(),
		PollInterval:   10 * time.Millisecond,
		CommandTimeout: 50 * time.Millisecond,
		Volume:         0.5,
		DuckingRatio:   0.3,
	}
}

// Player 顶层编排器
// 持有媒体/公告两条管道和混音器+输出工作循环一条输出链
// 所有外部调用异步入队，效果通过随后发布的状态观察
type Player struct {
	cfg Config

	mixer     *audio.CombineStreamer
	worker    *audio.StreamWorker
	mediaPipe *audio.Pipeline
	annPipe   *audio.Pipeline
	volumeCtl VolumeControl

	commands chan command

	state atomic.Int32

	// 以下字段仅由轮询循环写入，statusMu 保护快照读取
	statusMu   sync.Mutex
	volume     float64
	muted      bool // 用户显式静音闩锁
	idleMuted  bool // 进入空闲/暂停的自动静音
	paused     bool
	mediaState PipelineState
	annState   PipelineState

	retries map[string]*retryTask

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New 创建编排器并组装引擎：
// producer → 管道输入缓冲 → 混音器 → 输出缓冲 → 输出工作循环 → sink
func New(sink audio.OutputSink, producer audio.Producer, volumeCtl VolumeControl, cfg Config) (*Player, error) {
	if !cfg.Info.Valid() {
		cfg.Info = audio.DefaultStreamInfo()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 50 * time.Millisecond
	}

	mixer, err := audio.NewCombineStreamer(cfg.Info)
	if err != nil {
		return nil, err
	}

	workerCfg := audio.DefaultWorkerConfig()
	workerCfg.Info = cfg.Info
	worker := audio.NewStreamWorker(sink, mixer, workerCfg)

	p := &Player{
		cfg:       cfg,
		mixer:     mixer,
		worker:    worker,
		mediaPipe: audio.NewPipeline(audio.PipelineMedia, producer, mixer.MediaInput()),
		annPipe:   audio.NewPipeline(audio.PipelineAnnouncement, producer, mixer.AnnouncementInput()),
		volumeCtl: volumeCtl,
		commands:  make(chan command, audio.QueueDepth),
		volume:    clampVolume(cfg.Volume),
		retries:   make(map[string]*retryTask),
	}
	return p, nil
}

// Start 启动混音器、输出工作循环和轮询控制循环
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	ctx, p.cancel = context.WithCancel(ctx)

	p.mixer.Start("mixer")
	p.worker.Start()
	p.worker.SetVolume(p.volume)
	p.mixer.SendCommand(audio.CommandEvent{
		Command:      audio.CommandDuck,
		DuckingRatio: p.cfg.DuckingRatio,
	}, p.cfg.CommandTimeout)

	p.started = true
	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

// Stop 停止两条管道与输出链，阻塞直到全部退出
func (p *Player) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	p.stopPipeline(p.mediaPipe, "media")
	p.stopPipeline(p.annPipe, "announcement")

	p.worker.Stop(false)
	p.worker.Wait()
	p.mixer.Stop()

	cancel()
	p.wg.Wait()
}

// stopPipeline 发送停止命令并在有限时间内等待管道终止
func (p *Player) stopPipeline(pipe *audio.Pipeline, label string) {
	if pipe.Stopped() {
		return
	}
	pipe.SendCommand(audio.CommandEvent{Command: audio.CommandStop}, p.cfg.CommandTimeout)

	deadline := time.Now().Add(500 * time.Millisecond)
	for !pipe.Stopped() && time.Now().Before(deadline) {
		time.Sleep(p.cfg.PollInterval)
	}
	if !pipe.Stopped() {
		logging.Warnf("Player: %s pipeline did not stop before shutdown deadline", label)
	}
}

// State 当前对外发布的播放器状态
func (p *Player) State() State {
	return State(p.state.Load())
}

// Volume 当前线性音量
func (p *Player) Volume() float64 {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.volume
}

// Muted 用户显式静音是否闩锁
func (p *Player) Muted() bool {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.muted
}

// SetSource 播放新的媒体源或公告源
// 返回 false 表示命令队列持续满载，调用方需要重试
func (p *Player) SetSource(url string, announcement bool) bool {
	return p.send(command{kind: cmdNewSource, url: url, announcement: announcement})
}

// SetVolume 设置 [0,1] 线性音量
func (p *Player) SetVolume(volume float64) bool {
	return p.send(command{kind: cmdVolume, volume: volume})
}

// Transport 发送传输控制命令
func (p *Player) Transport(cmd TransportCommand) bool {
	return p.send(command{kind: cmdTransport, transport: cmd})
}

// SetDuckingRatio 设置公告播放期间媒体一路的闪避比率
func (p *Player) SetDuckingRatio(ratio float64) bool {
	return p.send(command{kind: cmdDucking, ratio: ratio})
}

// send 带超时的阻塞入队，队列持续满载时丢弃命令并告警
func (p *Player) send(cmd command) bool {
	select {
	case p.commands <- cmd:
		return true
	default:
	}

	timer := time.NewTimer(p.cfg.CommandTimeout)
	defer timer.Stop()
	select {
	case p.commands <- cmd:
		return true
	case <-timer.C:
		logging.Warnf("Player: command queue full, command dropped")
		return false
	}
}

// loop 轮询控制循环：排空命令 → 排空事件 → 驱动重试 → 推导状态
// 所有等待均有界，循环本身永不被组件阻塞
func (p *Player) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.statusMu.Lock()
			p.drainCommands()
			p.drainEvents()
			p.tickRetries()
			p.deriveState()
			p.statusMu.Unlock()
		}
	}
}

func (p *Player) drainCommands() {
	for {
		select {
		case cmd := <-p.commands:
			p.dispatch(cmd)
		default:
			return
		}
	}
}

func (p *Player) dispatch(cmd command) {
	switch cmd.kind {
	case cmdNewSource:
		p.startSource(cmd.url, cmd.announcement)
	case cmdVolume:
		p.volume = clampVolume(cmd.volume)
		p.applyVolume()
	case cmdDucking:
		p.mixer.SendCommand(audio.CommandEvent{
			Command:      audio.CommandDuck,
			DuckingRatio: cmd.ratio,
		}, p.cfg.CommandTimeout)
	case cmdTransport:
		p.transport(cmd.transport)
	}
}

// startSource 启动新源
// 目标管道未停止时执行停止-重试-启动协议，避免新旧生产方同时持有输入缓冲
func (p *Player) startSource(url string, announcement bool) {
	pipe, label := p.mediaPipe, "media"
	interval := mediaRetryInterval
	if announcement {
		pipe, label = p.annPipe, "announcement"
		interval = annRetryInterval
	}

	// 暂停期间播放新媒体源：恢复混音并清除暂停闩锁
	if !announcement && p.paused {
		p.resumeMedia()
	}

	if err := pipe.Start(url, label); err == nil {
		return
	}

	logging.Infof("Player: %s pipeline busy, stopping before restart", label)
	pipe.SendCommand(audio.CommandEvent{Command: audio.CommandStop}, p.cfg.CommandTimeout)
	p.retries[label+"_start"] = newRetryTask(label+"_start", interval, sourceRetryCount,
		func() error { return pipe.Start(url, label) })
}

func (p *Player) transport(cmd TransportCommand) {
	switch cmd {
	case TransportPlay:
		if p.paused {
			p.resumeMedia()
		}
	case TransportPause:
		if !p.paused && p.mediaState != PipelineStopped {
			p.mixer.SendCommand(audio.CommandEvent{Command: audio.CommandPauseMedia}, p.cfg.CommandTimeout)
			p.paused = true
		}
	case TransportToggle:
		if p.paused {
			p.transport(TransportPlay)
		} else {
			p.transport(TransportPause)
		}
	case TransportStop:
		p.mediaPipe.SendCommand(audio.CommandEvent{Command: audio.CommandStop}, p.cfg.CommandTimeout)
		if p.paused {
			p.resumeMedia()
		}
	case TransportMute:
		p.muted = true
		p.applyMute()
	case TransportUnmute:
		p.muted = false
		p.applyMute()
	case TransportVolumeUp:
		p.volume = clampVolume(p.volume + 0.05)
		p.applyVolume()
	case TransportVolumeDown:
		p.volume = clampVolume(p.volume - 0.05)
		p.applyVolume()
	}
}

func (p *Player) resumeMedia() {
	p.mixer.SendCommand(audio.CommandEvent{Command: audio.CommandResumeMedia}, p.cfg.CommandTimeout)
	p.paused = false
}

// drainEvents 非阻塞排空各组件的事件队列，更新推导用的管道状态
func (p *Player) drainEvents() {
	for {
		select {
		case ev := <-p.mediaPipe.Events():
			p.mediaState = p.applyPipelineEvent(p.mediaState, ev, "media")
		case ev := <-p.annPipe.Events():
			p.annState = p.applyPipelineEvent(p.annState, ev, "announcement")
		case ev := <-p.mixer.Events():
			p.logWarning("mixer", ev)
		case ev := <-p.worker.Events():
			p.logWarning("speaker", ev)
			if ev.Type == audio.EventStopped {
				logging.Warnf("Player: output worker stopped")
			}
		default:
			return
		}
	}
}

func (p *Player) applyPipelineEvent(st PipelineState, ev audio.TaskEvent, label string) PipelineState {
	p.logWarning(label, ev)
	return st.applyEvent(ev)
}

func (p *Player) logWarning(component string, ev audio.TaskEvent) {
	if ev.Type == audio.EventWarning {
		logging.Warnf("Player: %s warning: %v", component, ev.Err)
	}
}

func (p *Player) tickRetries() {
	now := time.Now()
	for name, task := range p.retries {
		if task.tick(now) {
			delete(p.retries, name)
		}
	}
}

// deriveState 从子状态确定性地推导播放器状态
// 优先级：公告播放 > 暂停 > 媒体播放 > 空闲
// 进入空闲/暂停自动静音，离开时解除（用户显式静音不受影响）
func (p *Player) deriveState() {
	st := StateIdle
	switch {
	case p.annState != PipelineStopped:
		st = StateAnnouncing
	case p.paused:
		st = StatePaused
	case p.mediaState != PipelineStopped:
		st = StatePlaying
	}

	if old := State(p.state.Swap(int32(st))); old != st {
		logging.Infof("Player: state %s -> %s", old, st)
	}

	wantIdleMute := st == StateIdle || st == StatePaused
	if wantIdleMute != p.idleMuted {
		p.idleMuted = wantIdleMute
		p.applyMute()
	}
}

func (p *Player) effectiveMute() bool {
	return p.muted || p.idleMuted
}

func (p *Player) applyVolume() {
	if p.volumeCtl != nil {
		if err := p.volumeCtl.SetVolume(p.volume); err != nil {
			logging.Warnf("Player: set amplifier volume: %v", err)
		}
	}
	if !p.effectiveMute() {
		p.worker.SetVolume(p.volume)
	}
}

func (p *Player) applyMute() {
	if p.volumeCtl != nil {
		if err := p.volumeCtl.SetMute(p.effectiveMute()); err != nil {
			logging.Warnf("Player: set amplifier mute: %v", err)
		}
	}
	if p.effectiveMute() {
		p.worker.SetVolume(0)
	} else {
		p.worker.SetVolume(p.volume)
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
