package tracker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/img3d/internal/retry"
	"github.com/BaSui01/img3d/threed"
	"github.com/BaSui01/img3d/types"
)

// DefaultPollInterval 轮询间隔
const DefaultPollInterval = 2 * time.Second

// Gateway 是 tracker 访问提交/状态接口的端口
type Gateway = threed.Gateway

// Observer 接收转换生命周期事件，internal/metrics.Collector 实现了该接口
type Observer interface {
	ConversionStarted()
	SubmissionDone(ok bool)
	PollDone(ok bool)
	ConversionFinished(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ConversionStarted() {}
func (nopObserver) SubmissionDone(bool) {}
func (nopObserver) PollDone(bool) {}
func (nopObserver) ConversionFinished(string, time.Duration) {}

// Options tracker 配置
type Options struct {
	// PollInterval 两次状态查询之间的固定间隔
	PollInterval time.Duration
	// Deadline 整体截止时间，0 表示不限制
	Deadline time.Duration
	// Retry 状态查询瞬时失败的重试策略；为 nil 或 MaxRetries 为 0 时不重试
	Retry *retry.Policy
	// MonotonicProgress 非终态时不允许进度回退
	MonotonicProgress bool
	// CompleteOnSuccess 成功时将进度置为 100
	CompleteOnSuccess bool

	Logger   *zap.Logger
	Observer Observer
}

// DefaultOptions 返回默认配置
func DefaultOptions() Options {
	return Options{
		PollInterval:      DefaultPollInterval,
		Deadline:          15 * time.Minute,
		Retry:             retry.DefaultPolicy(),
		MonotonicProgress: true,
		CompleteOnSuccess: true,
	}
}

func (o Options) normalized() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Deadline < 0 {
		o.Deadline = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	var p retry.Policy
	if o.Retry != nil {
		p = *o.Retry
	}
	if p.RetryIf == nil {
		p.RetryIf = IsTransient
	}
	o.Retry = &p
	return o
}

// IsTransient 判断状态查询错误是否值得重试：传输错误与上游 5xx/429。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if types.IsRetryable(err) {
		return true
	}
	return retry.IsRetryableError(err)
}
