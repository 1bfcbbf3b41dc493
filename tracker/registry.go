package tracker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry 为每个用户维护独立的 tracker 实例，并回收长时间空闲的实例。
type Registry struct {
	gw      Gateway
	opts    Options
	idleTTL time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	trackers map[string]*Tracker
	closed   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry 创建注册表。idleTTL <= 0 时不回收。
func NewRegistry(gw Gateway, opts Options, idleTTL time.Duration) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		gw:       gw,
		opts:     opts,
		idleTTL:  idleTTL,
		logger:   logger.With(zap.String("component", "tracker_registry")),
		trackers: make(map[string]*Tracker),
		stopCh:   make(chan struct{}),
	}
}

// Get 返回用户的 tracker，不存在时创建
func (r *Registry) Get(userID string) (*Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if t, ok := r.trackers[userID]; ok {
		// 刷新活跃时间，避免取到实例后被回收
		t.touch()
		return t, nil
	}
	opts := r.opts
	opts.Logger = r.logger.With(zap.String("user_id", userID))
	t := New(r.gw, opts)
	r.trackers[userID] = t
	return t, nil
}

// Lookup 返回已存在的 tracker
func (r *Registry) Lookup(userID string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[userID]
	return t, ok
}

// Len 当前实例数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// Sweep 关闭并移除在 now-idleTTL 之前就已空闲的 tracker，返回回收数量。
func (r *Registry) Sweep(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*Tracker
	for id, t := range r.trackers {
		if t.Idle(cutoff) {
			evicted = append(evicted, t)
			delete(r.trackers, id)
		}
	}
	r.mu.Unlock()

	for _, t := range evicted {
		_ = t.Close()
	}
	if len(evicted) > 0 {
		r.logger.Debug("evicted idle trackers", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// StartSweeper 启动后台回收，Close 时停止
func (r *Registry) StartSweeper(interval time.Duration) {
	if interval <= 0 || r.idleTTL <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case now := <-ticker.C:
				r.Sweep(now)
			}
		}
	}()
}

// Close 停止回收并关闭全部 tracker，等待所有轮询循环退出。
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.stopCh)
	trackers := make([]*Tracker, 0, len(r.trackers))
	for id, t := range r.trackers {
		trackers = append(trackers, t)
		delete(r.trackers, id)
	}
	r.mu.Unlock()

	r.wg.Wait()

	var wg sync.WaitGroup
	for _, t := range trackers {
		wg.Add(1)
		go func(t *Tracker) {
			defer wg.Done()
			_ = t.Close()
		}(t)
	}
	wg.Wait()
	r.logger.Info("tracker registry closed", zap.Int("trackers", len(trackers)))
	return nil
}
