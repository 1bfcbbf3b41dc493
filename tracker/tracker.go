package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/img3d/internal/retry"
	"github.com/BaSui01/img3d/threed"
)

// InstrumentationName 是 tracker 的 OpenTelemetry 作用域名
const InstrumentationName = "github.com/BaSui01/img3d/tracker"

// 转换指标名
const (
	MetricConversionOutcomes = "img3d.conversion.outcomes"
	MetricConversionDuration = "img3d.conversion.duration"
)

// Tracker 管理单个转换请求的完整生命周期：提交、轮询、取消、截止时间。
// 同一时刻只有一个活动轮询循环；新的 ConvertImage 调用会取代旧循环，
// 旧循环迟到的结果会因为代数（generation）不匹配而被丢弃。
type Tracker struct {
	gw       Gateway
	opts     Options
	retryer  retry.Retryer
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer
	outcomes metric.Int64Counter
	duration metric.Float64Histogram

	mu         sync.Mutex
	state      State
	gen        uint64 // 最近一次 ConvertImage 的代数
	active     uint64 // 正在运行且允许修改状态的循环代数，0 表示无
	cancel     context.CancelFunc
	loopDone   <-chan struct{} // 活动循环的退出信号，编码阶段为 nil
	closed     bool
	subs       map[uint64]chan State
	nextSub    uint64
	lastActive time.Time

	wg sync.WaitGroup
}

// New 创建 tracker
func New(gw Gateway, opts Options) *Tracker {
	opts = opts.normalized()
	logger := opts.Logger.With(zap.String("component", "tracker"))

	meter := otel.Meter(InstrumentationName)
	outcomes, err := meter.Int64Counter(MetricConversionOutcomes,
		metric.WithDescription("Conversion attempts by outcome"),
		metric.WithUnit("{conversion}"))
	if err != nil {
		logger.Warn("failed to create outcome counter", zap.Error(err))
	}
	duration, err := meter.Float64Histogram(MetricConversionDuration,
		metric.WithDescription("Time from submission to the end of the polling loop"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	return &Tracker{
		gw:         gw,
		opts:       opts,
		retryer:    retry.NewBackoffRetryer(opts.Retry, logger),
		logger:     logger,
		observer:   opts.Observer,
		tracer:     otel.Tracer(InstrumentationName),
		outcomes:   outcomes,
		duration:   duration,
		subs:       make(map[uint64]chan State),
		lastActive: time.Now(),
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// ConvertImage 重置状态、编码图像并在后台启动提交与轮询。
//
// ctx 只提供 trace 等上下文值；它的取消不会终止转换，转换通过返回的 Handle、
// Cancel、Close 或整体截止时间结束。编码失败时同步返回错误，不发起任何网络调用。
func (t *Tracker) ConvertImage(ctx context.Context, payload []byte) (*Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
	gen := t.gen
	t.active = gen
	t.loopDone = nil
	t.state = State{IsConverting: true, Generation: gen}
	t.publishLocked()
	t.mu.Unlock()

	t.observer.ConversionStarted()

	imageURL, err := threed.EncodeImage(payload)
	if err != nil {
		t.fail(gen, KindEncoding, MsgEncodingFailed, err)
		t.record(ctx, OutcomeEncodingFailed, 0)
		return nil, fmt.Errorf("encode image: %w", err)
	}

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loopCtx, release := base, context.CancelFunc(func() {})
	if t.opts.Deadline > 0 {
		loopCtx, release = context.WithTimeoutCause(base, t.opts.Deadline, errDeadline)
	}

	done := make(chan struct{})

	t.mu.Lock()
	if t.closed || t.active != gen {
		// 编码期间被 Cancel、Close 或更新的调用取代
		t.mu.Unlock()
		release()
		cancel()
		close(done)
		t.record(ctx, OutcomeSuperseded, 0)
		return &Handle{t: t, gen: gen, done: done}, nil
	}
	t.cancel = cancel
	t.loopDone = done
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer close(done)
		defer cancel()
		defer release()
		t.run(loopCtx, gen, imageURL)
	}()

	return &Handle{t: t, gen: gen, done: done}, nil
}

// Cancel 停止当前轮询循环，不修改 CurrentTask 与 Error，IsConverting 置为 false。
// 返回时循环已退出，之后不会再发起状态查询。不得在 Gateway 调用内部调用。
func (t *Tracker) Cancel() {
	t.cancelAndWait(0)
}

// Close 停止当前循环并等待其退出，之后 ConvertImage 返回 ErrClosed。
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.wg.Wait()
		return nil
	}
	t.closed = true
	t.cancelLocked(0)
	t.mu.Unlock()

	t.wg.Wait()

	t.mu.Lock()
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	t.mu.Unlock()
	return nil
}

// State 返回当前状态副本
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// Subscribe 订阅状态变化。订阅时立即收到当前状态；消费过慢时丢弃中间状态，
// 通道中始终保留最新状态。返回的函数用于取消订阅。
func (t *Tracker) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	t.nextSub++
	id := t.nextSub
	t.subs[id] = ch
	ch <- t.state.Clone()
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				close(c)
				delete(t.subs, id)
			}
		})
	}
}

// Idle reports whether the tracker has no running conversion, no subscribers
// and has not changed since before cutoff.
func (t *Tracker) Idle(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active == 0 && len(t.subs) == 0 && t.lastActive.Before(cutoff)
}

func (t *Tracker) touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastActive = time.Now()
}

// =============================================================================
// 🔄 轮询循环
// =============================================================================

func (t *Tracker) run(ctx context.Context, gen uint64, imageURL string) {
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, "tracker.conversion",
		trace.WithAttributes(attribute.Int64("tracker.generation", int64(gen))))
	defer span.End()

	outcome := t.execute(ctx, gen, imageURL)

	span.SetAttributes(attribute.String("tracker.outcome", string(outcome)))
	switch outcome {
	case OutcomeSubmissionFailed, OutcomePollFailed, OutcomeTimeout, OutcomeFailed:
		span.SetStatus(codes.Error, string(outcome))
	}
	t.record(ctx, outcome, time.Since(start))
}

func (t *Tracker) execute(ctx context.Context, gen uint64, imageURL string) Outcome {
	jobID, err := t.gw.Submit(ctx, imageURL)
	if err != nil {
		if ctx.Err() != nil {
			return t.interrupted(ctx, gen)
		}
		t.observer.SubmissionDone(false)
		t.fail(gen, KindSubmission, MsgSubmissionFailed, err)
		return OutcomeSubmissionFailed
	}
	t.observer.SubmissionDone(true)

	if !t.begin(gen, jobID) {
		return t.interrupted(ctx, gen)
	}
	logger := t.logger.With(zap.String("task_id", jobID), zap.Uint64("generation", gen))
	logger.Info("conversion submitted")

	// 拿到任务 ID 后立即查询一次，之后按固定间隔轮询
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return t.interrupted(ctx, gen)
		case <-timer.C:
		}

		task, err := retry.DoWithResult(ctx, t.retryer, func(ctx context.Context) (*threed.ConversionTask, error) {
			if ctx.Err() != nil || !t.isActive(gen) {
				return nil, context.Canceled
			}
			return t.gw.Status(ctx, jobID)
		})
		if err != nil {
			if ctx.Err() != nil || !t.isActive(gen) {
				return t.interrupted(ctx, gen)
			}
			t.observer.PollDone(false)
			logger.Warn("status check failed", zap.Error(err))
			t.fail(gen, KindPoll, MsgPollFailed, err)
			return OutcomePollFailed
		}
		t.observer.PollDone(true)

		status, ok := t.apply(gen, jobID, task)
		if !ok {
			return t.interrupted(ctx, gen)
		}
		switch status {
		case threed.StatusSucceeded:
			logger.Info("conversion succeeded")
			return OutcomeSucceeded
		case threed.StatusFailed:
			logger.Info("conversion failed upstream")
			return OutcomeFailed
		}

		timer.Reset(t.opts.PollInterval)
	}
}

// interrupted 判断循环被打断的原因；截止时间触发时写入超时错误
func (t *Tracker) interrupted(ctx context.Context, gen uint64) Outcome {
	if errors.Is(context.Cause(ctx), errDeadline) {
		if t.fail(gen, KindTimeout, MsgTimedOut, errDeadline) {
			return OutcomeTimeout
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return OutcomeSuperseded
	}
	return OutcomeCancelled
}

// =============================================================================
// 🔒 状态变更（均需持有代数）
// =============================================================================

func (t *Tracker) isActive(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active == gen
}

func (t *Tracker) begin(gen uint64, jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != gen {
		return false
	}
	t.state.CurrentTask = threed.NewPendingTask(jobID)
	t.publishLocked()
	return true
}

// apply 用新快照整体替换 CurrentTask，返回应用后的状态
func (t *Tracker) apply(gen uint64, jobID string, snap *threed.ConversionTask) (threed.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != gen {
		return "", false
	}

	next := snap.Clone()
	next.ID = jobID
	next.Progress = threed.ClampProgress(next.Progress)

	if prev := t.state.CurrentTask; prev != nil {
		if prev.Status.IsTerminal() {
			return prev.Status, true
		}
		if statusRank(next.Status) < statusRank(prev.Status) {
			next.Status = prev.Status
		}
		if t.opts.MonotonicProgress && next.Status != threed.StatusSucceeded && next.Progress < prev.Progress {
			next.Progress = prev.Progress
		}
	}
	if next.Status == threed.StatusSucceeded && t.opts.CompleteOnSuccess {
		next.Progress = 100
	}

	t.state.CurrentTask = next
	switch next.Status {
	case threed.StatusSucceeded:
		t.finishLocked()
	case threed.StatusFailed:
		t.state.Error = MsgConversionFailed
		t.state.ErrorKind = KindUpstream
		t.finishLocked()
	}
	t.publishLocked()
	return next.Status, true
}

// fail 以错误结束当前代数；若已被取代或取消则不修改状态
func (t *Tracker) fail(gen uint64, kind Kind, msg string, cause error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != gen {
		return false
	}
	t.logger.Warn("conversion aborted",
		zap.Uint64("generation", gen),
		zap.String("kind", string(kind)),
		zap.Error(cause))
	t.state.Error = msg
	t.state.ErrorKind = kind
	t.finishLocked()
	t.publishLocked()
	return true
}

// cancelAndWait 取消 gen 对应的循环并等待其 goroutine 退出
func (t *Tracker) cancelAndWait(gen uint64) {
	t.mu.Lock()
	var done <-chan struct{}
	if t.active != 0 && (gen == 0 || t.active == gen) {
		done = t.loopDone
	}
	t.cancelLocked(gen)
	t.mu.Unlock()

	if done != nil {
		<-done
	}
}

// cancelLocked 取消 gen 对应的循环，gen 为 0 时取消任意活动循环
func (t *Tracker) cancelLocked(gen uint64) {
	if t.active == 0 || (gen != 0 && t.active != gen) {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.logger.Debug("conversion cancelled", zap.Uint64("generation", t.active))
	t.finishLocked()
	t.publishLocked()
}

func (t *Tracker) finishLocked() {
	t.state.IsConverting = false
	t.active = 0
	t.cancel = nil
}

func (t *Tracker) publishLocked() {
	t.state.UpdatedAt = time.Now()
	t.lastActive = t.state.UpdatedAt
	for _, ch := range t.subs {
		s := t.state.Clone()
		select {
		case ch <- s:
		default:
			// 丢弃最旧的一条，保证最新状态可达
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (t *Tracker) record(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	t.observer.ConversionFinished(string(outcome), elapsed)
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	if t.outcomes != nil {
		t.outcomes.Add(ctx, 1, attrs)
	}
	if t.duration != nil && elapsed > 0 {
		t.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
