package utils

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestURLSetNoDuplicates(t *testing.T) {
	s := NewURLSet()

	if !s.Add("https://www.megaleiloes.com.br/imoveis/1") {
		t.Error("first Add should return true")
	}
	if s.Add("https://www.megaleiloes.com.br/imoveis/1") {
		t.Error("second Add of same URL should return false")
	}
	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}

	s.Remove("https://www.megaleiloes.com.br/imoveis/1")
	if s.Contains("https://www.megaleiloes.com.br/imoveis/1") {
		t.Error("Contains after Remove should be false")
	}
	if !s.Add("https://www.megaleiloes.com.br/imoveis/1") {
		t.Error("Add after Remove should return true")
	}
}

func TestURLSetConcurrency(t *testing.T) {
	s := NewURLSet()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		url := "https://example.com/same"
		pool.Submit(func() {
			if s.Add(url) {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimitMs := 100
	pool := NewWorkerPool(1, rateLimitMs)

	var mu sync.Mutex
	var timestamps []time.Time
	for i := 0; i < 3; i++ {
		pool.Submit(func() {
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
		})
	}
	pool.Wait()

	if len(timestamps) != 3 {
		t.Fatalf("ran %d jobs; want 3", len(timestamps))
	}
	min := time.Duration(rateLimitMs) * time.Millisecond
	for i := 1; i < len(timestamps); i++ {
		if gap := timestamps[i].Sub(timestamps[i-1]); gap < min {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestWorkerPoolSubmitDoesNotBlock(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	release := make(chan struct{})

	first := pool.Submit(func() { <-release })

	start := time.Now()
	second := pool.Submit(func() {})
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Submit blocked for %v on a saturated pool", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := second.Wait(ctx); err == nil {
		t.Error("second job finished while the only slot was held")
	}

	close(release)
	if err := first.Wait(context.Background()); err != nil {
		t.Errorf("first.Wait: %v", err)
	}
	if err := second.Wait(context.Background()); err != nil {
		t.Errorf("second.Wait: %v", err)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond}
	err := r.Do(context.Background(), "op", func() error {
		calls++
		return &Permanent{Err: context.Canceled}
	})
	if calls != 1 {
		t.Errorf("calls = %d; want 1", calls)
	}
	if err != context.Canceled {
		t.Errorf("err = %v; want %v", err, context.Canceled)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: NewLoggerTo(io.Discard)}
	err := r.Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d; want 3", calls)
	}
}
