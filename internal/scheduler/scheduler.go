// Package scheduler 进程内周期任务：每个任务独立的 goroutine 与 ticker
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailtriage/pkg/metrics"
)

type Job interface {
	Run(ctx context.Context) error
}

// JobFunc 让普通函数实现 Job
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

type entry struct {
	name     string
	interval time.Duration
	job      Job
}

// Scheduler 同一任务的两次执行不会重叠，不同任务之间可以并发
type Scheduler struct {
	logger  *zap.Logger
	entries []entry
	wg      sync.WaitGroup
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Every 注册任务，须在 Start 之前调用
func (s *Scheduler) Every(name string, interval time.Duration, job Job) *Scheduler {
	s.entries = append(s.entries, entry{name: name, interval: interval, job: job})
	return s
}

// Start 为每个任务启动 goroutine，ctx 取消后退出
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		if e.interval <= 0 {
			s.logger.Warn("Skipping job with non-positive interval", zap.String("job", e.name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
}

// Wait 等待所有任务循环退出
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()
	s.logger.Info("Starting scheduled job", zap.String("job", e.name), zap.Duration("interval", e.interval))

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduled job stopped", zap.String("job", e.name))
			return
		case <-ticker.C:
			s.runOnce(ctx, e)
		}
	}
}

// runOnce 单次执行出错或 panic 只记录，不影响下一次
func (s *Scheduler) runOnce(ctx context.Context, e entry) {
	start := time.Now()
	defer func() {
		metrics.RecordSchedulerTick(e.name, time.Since(start))
		if r := recover(); r != nil {
			s.logger.Error("Scheduled job panicked", zap.String("job", e.name), zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("Scheduled job failed", zap.String("job", e.name), zap.Error(err))
	}
}
