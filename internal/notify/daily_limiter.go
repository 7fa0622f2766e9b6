// Package notify はアドレス指定されたエントリの通知記録と、
// ハンドルごとの通知回数制限を提供する。
package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DailyLimiterConfig は通知回数制限の設定を保持する。
type DailyLimiterConfig struct {
	CapPerDay       int           // ハンドルごとの1日あたり通知上限
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultDailyLimiterConfig はデフォルトの通知制限設定を返す。
func DefaultDailyLimiterConfig() DailyLimiterConfig {
	return DailyLimiterConfig{
		CapPerDay:       50,
		CleanupInterval: time.Hour,
	}
}

// handleLimiter はハンドルごとのレートリミッターとアクセス時刻を保持する。
type handleLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// DailyLimiter はハンドルごとの通知回数を1日単位で制限する。
// トークンバケットで実装しており、上限いっぱいまでのバーストを許可しつつ
// 1日あたりの補充量をCapPerDayに抑える。
type DailyLimiter struct {
	config DailyLimiterConfig

	mu       sync.RWMutex
	limiters map[string]*handleLimiter

	stopCh chan struct{}
}

// NewDailyLimiter は新しいDailyLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewDailyLimiter(config DailyLimiterConfig) *DailyLimiter {
	dl := &DailyLimiter{
		config:   config,
		limiters: make(map[string]*handleLimiter),
		stopCh:   make(chan struct{}),
	}

	go dl.cleanupLoop()

	return dl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (dl *DailyLimiter) Stop() {
	close(dl.stopCh)
}

// Allow は指定ハンドルへの通知が上限内かを判定し、トークンを1消費する。
func (dl *DailyLimiter) Allow(handle string) bool {
	return dl.getOrCreateLimiter(handle).Allow()
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (dl *DailyLimiter) LimiterCount() int {
	dl.mu.RLock()
	defer dl.mu.RUnlock()
	return len(dl.limiters)
}

// getOrCreateLimiter はハンドルのリミッターを取得または作成する。
func (dl *DailyLimiter) getOrCreateLimiter(handle string) *rate.Limiter {
	dl.mu.RLock()
	hl, exists := dl.limiters[handle]
	dl.mu.RUnlock()

	if exists {
		dl.mu.Lock()
		hl.lastAccess = time.Now()
		dl.mu.Unlock()
		return hl.limiter
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	// ダブルチェック
	if hl, exists := dl.limiters[handle]; exists {
		hl.lastAccess = time.Now()
		return hl.limiter
	}

	// 1日でCapPerDay個のトークンを補充する
	perSecond := rate.Limit(float64(dl.config.CapPerDay) / (24 * 60 * 60))
	limiter := rate.NewLimiter(perSecond, dl.config.CapPerDay)
	dl.limiters[handle] = &handleLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (dl *DailyLimiter) cleanupLoop() {
	ticker := time.NewTicker(dl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dl.cleanup()
		case <-dl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻が48時間を超えたエントリを削除する。
// 満タンまで補充されたリミッターを保持し続ける必要はない。
func (dl *DailyLimiter) cleanup() {
	const ttl = 48 * time.Hour

	now := time.Now()

	dl.mu.Lock()
	for handle, hl := range dl.limiters {
		if now.Sub(hl.lastAccess) > ttl {
			delete(dl.limiters, handle)
		}
	}
	dl.mu.Unlock()
}
