package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/bitesync/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	ChatRate        rate.Limit    // チャット中継のレート（req/sec）
	ChatBurst       int           // チャット中継のバーストサイズ
	CleanupInterval time.Duration // 使われなくなったリミッターの掃除間隔
}

// DefaultRateLimiterConfig はAPI全般 120 req/min、チャット 20 req/min の設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinuteConfig(120, 20)
}

// PerMinuteConfig は1分あたりの上限から設定を作る。バーストは1分ぶん。
func PerMinuteConfig(generalPerMin, chatPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		ChatRate:        rate.Limit(float64(chatPerMin) / 60.0),
		ChatBurst:       chatPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterPool はユーザーIDごとのトークンバケットを1種類分まとめて持つ。
type limiterPool struct {
	kind  string
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*userLimiter
}

func newLimiterPool(kind string, limit rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		kind:    kind,
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*userLimiter),
	}
}

func (p *limiterPool) get(userID string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	ul, ok := p.entries[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.entries[userID] = ul
	}
	ul.lastAccess = now
	return ul.limiter
}

// sweep はcutoffより前に最後に使われたエントリを削除し、件数を返す。
func (p *limiterPool) sweep(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for userID, ul := range p.entries {
		if ul.lastAccess.Before(cutoff) {
			delete(p.entries, userID)
			removed++
		}
	}
	return removed
}

func (p *limiterPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RateLimiter はユーザー単位のレート制限を行う。
// API全般とチャット中継は独立したバケットを持つ。
type RateLimiter struct {
	ttl     time.Duration
	general *limiterPool
	chat    *limiterPool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter はRateLimiterを生成し、CleanupIntervalごとの掃除を開始する。
// 最終アクセスからCleanupIntervalの2倍を過ぎたリミッターは削除される。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	interval := config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	rl := &RateLimiter{
		ttl:     interval * 2,
		general: newLimiterPool("general", config.GeneralRate, config.GeneralBurst),
		chat:    newLimiterPool("chat", config.ChatRate, config.ChatBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.sweepLoop(interval)

	return rl
}

// Stop は掃除ゴルーチンを止める。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限。SessionMiddlewareの後に置く。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// ChatMiddleware はチャット中継専用のレート制限。
func (rl *RateLimiter) ChatMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.chat)
}

func (rl *RateLimiter) middleware(pool *limiterPool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			now := time.Now()
			res := pool.get(userID, now).ReserveN(now, 1)
			if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
				res.CancelAt(now)
				slog.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", pool.kind),
				)
				writeRateLimitResponse(w, retryAfterSeconds(delay, pool.limit))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Sweep は使われなくなったリミッターを削除し、削除件数を返す。
func (rl *RateLimiter) Sweep() int {
	cutoff := time.Now().Add(-rl.ttl)
	return rl.general.sweep(cutoff) + rl.chat.sweep(cutoff)
}

// GeneralLimiterCount はAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.len() }

// ChatLimiterCount はチャットリミッターのエントリ数を返す。
func (rl *RateLimiter) ChatLimiterCount() int { return rl.chat.len() }

func (rl *RateLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Sweep()
		case <-rl.stopCh:
			return
		}
	}
}

// retryAfterSeconds は次のトークンまでの待ち時間を秒に切り上げる。最低1秒。
func retryAfterSeconds(delay time.Duration, limit rate.Limit) int {
	if delay <= 0 || delay == rate.InfDuration {
		if limit <= 0 {
			return 60
		}
		delay = time.Duration(float64(time.Second) / float64(limit))
	}
	sec := int(math.Ceil(delay.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

func writeRateLimitResponse(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
