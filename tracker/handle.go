package tracker

import "context"

// Handle 代表一次 ConvertImage 调用，可用于取消或等待该次转换。
type Handle struct {
	t    *Tracker
	gen  uint64
	done <-chan struct{}
}

// Generation 返回该次调用的代数
func (h *Handle) Generation() uint64 { return h.gen }

// Done 在后台循环退出后关闭
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel 仅在该次调用仍是活动循环时生效，不会影响之后发起的转换。
// 生效时等待循环退出后返回。
func (h *Handle) Cancel() {
	h.t.cancelAndWait(h.gen)
}

// Wait 等待后台循环退出并返回 tracker 当前状态。
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.t.State(), nil
	case <-ctx.Done():
		return h.t.State(), ctx.Err()
	}
}
