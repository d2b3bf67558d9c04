package audio

import "errors"

// 引擎统一的错误分类
// 输出设备返回的任意错误都会被归并到这些类别再上报
var (
	ErrInvalidState    = errors.New("audio: invalid state")
	ErrInvalidArgument = errors.New("audio: invalid argument")
	ErrInvalidSize     = errors.New("audio: invalid size")
	ErrOutOfMemory     = errors.New("audio: out of memory")
	ErrIOFailure       = errors.New("audio: io failure")
	ErrTaskStartFailed = errors.New("audio: task failed to start")
)

// ClassifyError 将任意错误归类到引擎错误分类
// 已经是分类错误（或其包装）的原样返回，其余一律按 IO 失败处理
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrInvalidState,
		ErrInvalidArgument,
		ErrInvalidSize,
		ErrOutOfMemory,
		ErrTaskStartFailed,
		ErrIOFailure,
	} {
		if errors.Is(err, known) {
			return known
		}
	}
	return ErrIOFailure
}
