package cache

import (
	"context"
	"time"

	"github.com/BaSui01/img3d/threed"
)

// =============================================================================
// 🧊 任务快照缓存
// =============================================================================

// HitRecorder 记录缓存命中情况
type HitRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const taskCacheType = "task"

// TaskStore 缓存终态任务快照。终态快照不再变化，
// 重复的状态查询可直接命中缓存而不访问上游。
type TaskStore struct {
	m       *Manager
	ttl     time.Duration
	metrics HitRecorder
}

// NewTaskStore 创建任务快照缓存，ttl 为 0 时使用 Manager 的默认过期时间
func NewTaskStore(m *Manager, ttl time.Duration, metrics HitRecorder) *TaskStore {
	return &TaskStore{m: m, ttl: ttl, metrics: metrics}
}

func taskKey(id string) string {
	return "task:" + id
}

// Get 读取任务快照，未命中返回 ErrCacheMiss
func (s *TaskStore) Get(ctx context.Context, id string) (*threed.ConversionTask, error) {
	var task threed.ConversionTask
	if err := s.m.GetJSON(ctx, taskKey(id), &task); err != nil {
		if IsCacheMiss(err) && s.metrics != nil {
			s.metrics.RecordCacheMiss(taskCacheType)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCacheHit(taskCacheType)
	}
	return &task, nil
}

// Put 写入快照，仅终态快照会被缓存
func (s *TaskStore) Put(ctx context.Context, task *threed.ConversionTask) error {
	if task == nil || task.ID == "" || !task.Status.IsTerminal() {
		return nil
	}
	return s.m.SetJSON(ctx, taskKey(task.ID), task, s.ttl)
}
