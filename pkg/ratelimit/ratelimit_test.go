package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketExhaustion(t *testing.T) {
	tb := NewTokenBucket(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("第 %d 次请求应该被允许", i+1)
		}
	}
	if tb.Allow() {
		t.Error("桶耗尽后请求应该被拒绝")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(2, 100*time.Millisecond)
	tb.Allow()
	tb.Allow()
	if tb.Allow() {
		t.Fatal("桶耗尽后请求应该被拒绝")
	}

	time.Sleep(120 * time.Millisecond)
	if !tb.Allow() {
		t.Error("窗口过后应该补充令牌")
	}
}

func TestTokenBucketRemaining(t *testing.T) {
	tb := NewTokenBucket(5, time.Minute)
	tb.Allow()
	tb.Allow()
	if got := tb.Remaining(); got != 3 {
		t.Errorf("剩余令牌应该为 3，实际 %d", got)
	}
}

func TestKeyedIsolatesKeys(t *testing.T) {
	k := NewKeyed(1, time.Minute)
	if !k.Allow("a") {
		t.Fatal("a 的首次请求应该被允许")
	}
	if k.Allow("a") {
		t.Error("a 的第二次请求应该被拒绝")
	}
	if !k.Allow("b") {
		t.Error("b 不应该受 a 的限制影响")
	}
}

func TestKeyedDisabled(t *testing.T) {
	k := NewKeyed(0, time.Minute)
	if k != nil {
		t.Fatal("capacity <= 0 应该返回 nil")
	}
	for i := 0; i < 100; i++ {
		if !k.Allow("a") {
			t.Fatal("nil 限制器应该允许所有请求")
		}
	}
}
