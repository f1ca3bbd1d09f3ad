package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket 令牌桶速率限制器
type TokenBucket struct {
	capacity   float64       // 桶容量
	tokens     float64       // 当前令牌数
	refill     float64       // 每个窗口补充的令牌数
	window     time.Duration // 补充窗口
	lastRefill time.Time     // 上次补充时间
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶
func NewTokenBucket(capacity int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refill:     float64(capacity),
		window:     window,
		lastRefill: time.Now(),
	}
}

// Allow 检查是否允许请求（消耗一个令牌）
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.doRefill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Remaining 返回当前剩余令牌数
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.doRefill()
	return int(tb.tokens)
}

// doRefill 按经过时间按比例补充令牌（调用方必须持有锁）
func (tb *TokenBucket) doRefill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens += tb.refill * float64(elapsed) / float64(tb.window)
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Keyed 按键（如用户 ID）隔离的速率限制器
// 每个键拥有独立的令牌桶，空闲的桶会被定期清理
type Keyed struct {
	capacity int
	window   time.Duration

	mu      sync.Mutex
	buckets map[string]*keyedBucket
}

type keyedBucket struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewKeyed 创建按键限制器；capacity <= 0 表示不限制
func NewKeyed(capacity int, window time.Duration) *Keyed {
	if capacity <= 0 {
		return nil
	}
	k := &Keyed{
		capacity: capacity,
		window:   window,
		buckets:  make(map[string]*keyedBucket),
	}
	go k.startCleanup()
	return k
}

// Allow 检查指定键是否允许请求
// nil 限制器等同于不限制
func (k *Keyed) Allow(key string) bool {
	if k == nil {
		return true
	}

	k.mu.Lock()
	kb, ok := k.buckets[key]
	if !ok {
		kb = &keyedBucket{bucket: NewTokenBucket(k.capacity, k.window)}
		k.buckets[key] = kb
	}
	kb.lastSeen = time.Now()
	k.mu.Unlock()

	return kb.bucket.Allow()
}

// startCleanup 定期清理长时间未使用的桶
func (k *Keyed) startCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * k.window)
		k.mu.Lock()
		for key, kb := range k.buckets {
			if kb.lastSeen.Before(cutoff) {
				delete(k.buckets, key)
			}
		}
		k.mu.Unlock()
	}
}
