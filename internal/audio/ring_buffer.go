package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RingBuffer 有界字节环形缓冲，单写单读
// 读写均为带超时的阻塞操作，绝不覆盖未消费的数据
// 由消费方创建并持有，销毁前通过 Close 唤醒所有阻塞中的读写方
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	r    int // 读游标
	w    int // 写游标
	size int // 当前可读字节数

	avail atomic.Int64 // size 的无锁快照，供活性探测使用
	wrote atomic.Int64 // 累计写入字节数，供"首批数据已到达"判定使用

	readable chan struct{}
	writable chan struct{}
	done     chan struct{}
	closed   atomic.Bool
}

// NewRingBuffer 创建容量为 capacity 字节的环形缓冲
func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring buffer capacity %d: %w", capacity, ErrInvalidArgument)
	}
	return &RingBuffer{
		buf:      make([]byte, capacity),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Capacity 缓冲容量（字节）
func (rb *RingBuffer) Capacity() int {
	return len(rb.buf)
}

// Available 当前可读字节数的无锁快照
func (rb *RingBuffer) Available() int {
	return int(rb.avail.Load())
}

// TotalWritten 累计写入字节数
// 与 Available 不同，读取不会使其回落，Reset 也不清零
func (rb *RingBuffer) TotalWritten() int64 {
	return rb.wrote.Load()
}

// WriteWithoutReplacement 在 timeout 内尽量写入 p
// 只写入空闲空间，缓冲持续满载时部分写入后返回，返回实际写入的字节数
func (rb *RingBuffer) WriteWithoutReplacement(p []byte, timeout time.Duration) int {
	written := 0
	deadline := time.Now().Add(timeout)
	for written < len(p) {
		written += rb.copyIn(p[written:])
		if written == len(p) || rb.closed.Load() {
			break
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		timer := time.NewTimer(remaining)
		select {
		case <-rb.writable:
		case <-rb.done:
		case <-timer.C:
			timer.Stop()
			return written
		}
		timer.Stop()
	}
	return written
}

// Read 在 timeout 内读取最多 len(p) 字节
// 超时前没有任何数据到达则返回 0，否则返回 1..len(p) 之间的实际读取数
func (rb *RingBuffer) Read(p []byte, timeout time.Duration) int {
	if len(p) == 0 {
		return 0
	}
	deadline := time.Now().Add(timeout)
	for {
		if n := rb.copyOut(p); n > 0 {
			return n
		}
		if rb.closed.Load() {
			return 0
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0
		}
		timer := time.NewTimer(remaining)
		select {
		case <-rb.readable:
		case <-rb.done:
		case <-timer.C:
			timer.Stop()
			return 0
		}
		timer.Stop()
	}
}

// Reset 丢弃全部已缓冲数据
// 只允许消费方在生产方静止后调用
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	rb.r = 0
	rb.w = 0
	rb.size = 0
	rb.avail.Store(0)
	rb.mu.Unlock()
	rb.signal(rb.writable)
}

// Close 结束缓冲的生命周期，唤醒所有阻塞中的读写方
// 关闭后 Read 仍可取走剩余数据，Write 立即返回部分计数
func (rb *RingBuffer) Close() {
	if rb.closed.CompareAndSwap(false, true) {
		close(rb.done)
	}
}

func (rb *RingBuffer) copyIn(p []byte) int {
	rb.mu.Lock()
	free := len(rb.buf) - rb.size
	n := len(p)
	if n > free {
		n = free
	}
	if n == 0 {
		rb.mu.Unlock()
		return 0
	}

	right := len(rb.buf) - rb.w
	if right >= n {
		copy(rb.buf[rb.w:], p[:n])
	} else {
		copy(rb.buf[rb.w:], p[:right])
		copy(rb.buf, p[right:n])
	}
	rb.w = (rb.w + n) % len(rb.buf)
	rb.size += n
	rb.avail.Store(int64(rb.size))
	rb.wrote.Add(int64(n))
	rb.mu.Unlock()

	rb.signal(rb.readable)
	return n
}

func (rb *RingBuffer) copyOut(p []byte) int {
	rb.mu.Lock()
	n := len(p)
	if n > rb.size {
		n = rb.size
	}
	if n == 0 {
		rb.mu.Unlock()
		return 0
	}

	right := len(rb.buf) - rb.r
	if right >= n {
		copy(p[:n], rb.buf[rb.r:])
	} else {
		copy(p[:right], rb.buf[rb.r:])
		copy(p[right:n], rb.buf)
	}
	rb.r = (rb.r + n) % len(rb.buf)
	rb.size -= n
	rb.avail.Store(int64(rb.size))
	rb.mu.Unlock()

	rb.signal(rb.writable)
	return n
}

func (rb *RingBuffer) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
