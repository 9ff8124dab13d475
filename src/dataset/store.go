package dataset

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL 缓存有效期
const DefaultTTL = 60 * time.Second

// Source 产生加载结果的对象, Loader 实现了它
type Source interface {
	Load(ctx context.Context) *Result
}

// Recorder 加载与缓存指标
type Recorder interface {
	ObserveLoad(status string, rows int, d time.Duration)
	CacheHit()
	CacheMiss()
}

// StatusHook 状态变化回调, prev 在首次加载时为空
type StatusHook func(prev Status, res *Result)

// Store 单条目缓存, 过期或失效后重新加载
type Store struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	current  *Result
	expires  time.Time
	gen      uint64
	status   Status
	recorder Recorder
	hooks    []StatusHook

	group singleflight.Group
}

// NewStore 创建缓存, ttl<=0 时使用 DefaultTTL
func NewStore(source Source, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetRecorder 设置指标记录器
func (s *Store) SetRecorder(r Recorder) {
	s.mu.Lock()
	s.recorder = r
	s.mu.Unlock()
}

// OnStatusChange 注册状态变化回调
func (s *Store) OnStatusChange(h StatusHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// Current 返回缓存结果, 过期时重新加载. 有效期内多次调用返回同一个指针
func (s *Store) Current(ctx context.Context) *Result {
	s.mu.Lock()
	if s.current != nil && s.now().Before(s.expires) {
		res, rec := s.current, s.recorder
		s.mu.Unlock()
		if rec != nil {
			rec.CacheHit()
		}
		return res
	}
	gen, rec := s.gen, s.recorder
	s.mu.Unlock()

	if rec != nil {
		rec.CacheMiss()
	}

	// 同一代的并发未命中只加载一次. 加载结果由所有等待者共享,
	// 不随发起者的 ctx 取消, 超时由各数据源自己控制
	loadCtx := context.WithoutCancel(ctx)
	v, _, _ := s.group.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return s.reload(loadCtx, gen), nil
	})
	return v.(*Result)
}

func (s *Store) reload(ctx context.Context, gen uint64) *Result {
	res := s.source.Load(ctx)

	s.mu.Lock()
	prev := s.status
	// 加载期间被 Invalidate 过的结果不写入缓存
	if gen == s.gen {
		s.current = res
		s.expires = s.now().Add(s.ttl)
	}
	s.status = res.Status
	rec := s.recorder
	hooks := append([]StatusHook(nil), s.hooks...)
	s.mu.Unlock()

	if rec != nil {
		rec.ObserveLoad(string(res.Status), res.Rows(), res.Duration)
	}
	if prev != res.Status {
		for _, h := range hooks {
			h(prev, res)
		}
	}
	return res
}

// Invalidate 清除缓存, 下次 Current 重新走完整加载流程
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.gen++
	s.mu.Unlock()
}

// Peek 返回当前缓存结果, 不触发加载; 没有缓存时为 nil
func (s *Store) Peek() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// TTL 缓存有效期
func (s *Store) TTL() time.Duration { return s.ttl }
