package player

import (
	"time"

	"github.com/esphome/voice-kit/internal/logging"
)

// retryTask 有界固定间隔重试任务
// 由编排器的轮询节拍驱动，不占用额外 goroutine
// 成功或用尽尝试次数后结束，用尽时上报终态失败
type retryTask struct {
	name      string
	interval  time.Duration
	remaining int
	next      time.Time
	fn        func() error
}

func newRetryTask(name string, interval time.Duration, attempts int, fn func() error) *retryTask {
	return &retryTask{
		name:      name,
		interval:  interval,
		remaining: attempts,
		next:      time.Now().Add(interval),
		fn:        fn,
	}
}

// tick 尝试执行一次，返回 true 表示任务结束（成功或放弃）
func (t *retryTask) tick(now time.Time) bool {
	if now.Before(t.next) {
		return false
	}

	err := t.fn()
	if err == nil {
		return true
	}

	t.remaining--
	if t.remaining <= 0 {
		logging.Warnf("Player: retry %s exhausted: %v", t.name, err)
		return true
	}
	t.next = now.Add(t.interval)
	return false
}
