// Package ratelimit は固定ウィンドウ方式のリクエスト許可判定を提供する。
package ratelimit

import (
	"sync"
	"time"
)

// defaultSweepInterval は期限切れバケットのクリーンアップ間隔。
const defaultSweepInterval = 5 * time.Minute

// bucket はキーごとの固定ウィンドウカウンタ。
// windowStartとcountの更新はmuで直列化し、同一キーの並行リクエストで
// カウントの取りこぼしや二重カウントが起きないようにする。
type bucket struct {
	mu          sync.Mutex
	windowStart int64
	count       int
}

// FixedWindowLimiter はキーごとの固定ウィンドウカウンタでリクエストの許可を判定する。
// ウィンドウ境界は now - (now mod windowSeconds) に揃えた非重複区間で、
// 境界をまたぐバーストは一時的に最大2倍まで通りうる（スライディングウィンドウではない）。
// プロセス内・インメモリの実装であり、プロセスをまたいだ制限は行わない。
type FixedWindowLimiter struct {
	windowSeconds int64
	maxRequests   int

	mu      sync.RWMutex
	buckets map[string]*bucket

	now    func() time.Time
	stopCh chan struct{}
}

// NewFixedWindowLimiter はFixedWindowLimiterを生成する。
// バックグラウンドで期限切れバケットのクリーンアップを開始する。
// テストはケースごとに新しいインスタンスを生成すること。
func NewFixedWindowLimiter(windowSeconds int64, maxRequests int) *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		windowSeconds: windowSeconds,
		maxRequests:   maxRequests,
		buckets:       make(map[string]*bucket),
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}

	go l.sweepLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *FixedWindowLimiter) Stop() {
	close(l.stopCh)
}

// Allow は指定キーのリクエストを現在のウィンドウで許可するかどうかを返す。
// バケットのウィンドウが現在の境界と異なる場合はカウントをリセットして新しい境界を採用する。
// カウントをインクリメントした後の値がmaxRequests以下の場合のみ許可し、
// 超過後もカウントは次の回転まで増え続ける（飽和させない）。
func (l *FixedWindowLimiter) Allow(key string) bool {
	now := l.now().Unix()
	windowStart := now - now%l.windowSeconds

	b := l.getOrCreateBucket(key, windowStart)

	b.mu.Lock()
	defer b.mu.Unlock()

	// ウィンドウの回転
	if b.windowStart != windowStart {
		b.windowStart = windowStart
		b.count = 0
	}

	b.count++
	return b.count <= l.maxRequests
}

// Len は現在保持しているバケット数を返す。テストおよびメトリクス用。
func (l *FixedWindowLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// getOrCreateBucket は指定キーのバケットを取得または作成する。
// キー間の操作が互いにブロックしないよう、マップアクセスは読み取りロック優先で行う。
func (l *FixedWindowLimiter) getOrCreateBucket(key string, windowStart int64) *bucket {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// ダブルチェック
	if b, exists := l.buckets[key]; exists {
		return b
	}

	b = &bucket{windowStart: windowStart}
	l.buckets[key] = b
	return b
}

// sweepLoop はバックグラウンドで期限切れバケットを定期的にクリーンアップする。
// クライアントアドレスごとに無期限にバケットが蓄積するのを防ぐための整理であり、
// ウィンドウ内の許可判定には影響しない。
func (l *FixedWindowLimiter) sweepLoop() {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

// sweep はウィンドウが2回転以上前のバケットを削除する。
// 削除されたキーの次のリクエストは新しいバケットの新しいウィンドウから数え直しになるが、
// 2ウィンドウ以上経過している時点でどのみちカウントはリセットされるため挙動は変わらない。
func (l *FixedWindowLimiter) sweep() {
	now := l.now().Unix()
	windowStart := now - now%l.windowSeconds

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		b.mu.Lock()
		stale := windowStart-b.windowStart >= 2*l.windowSeconds
		b.mu.Unlock()
		if stale {
			delete(l.buckets, key)
		}
	}
}
