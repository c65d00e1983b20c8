package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

const (
	// recoverySteps は失敗後に設定レートへ戻るまでに必要な連続成功回数です。
	recoverySteps = 10
	defaultFloor  = rate.Limit(0.05)
)

// Admission は外部呼び出しの前段に置くトークンバケット型の流量制御です。
// 失敗を観測するとレートを半減し、成功ごとに設定値まで加算的に戻します。
// nil の *Admission は常に即時許可します。
type Admission struct {
	limiter *rate.Limiter
	ceiling rate.Limit
	floor   rate.Limit

	mu sync.Mutex
}

// NewAdmission は毎秒 perSecond 件、バースト burst 件の Admission を生成します。
// perSecond が 0 以下なら無制限になり、レート調整も行いません。
func NewAdmission(perSecond float64, burst int) *Admission {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	floor := defaultFloor
	if limit != rate.Inf && limit < floor {
		floor = limit
	}
	return &Admission{
		limiter: rate.NewLimiter(limit, burst),
		ceiling: limit,
		floor:   floor,
	}
}

// Wait はトークンを1つ取得するまで待機します。
func (a *Admission) Wait(ctx context.Context) error {
	if a == nil {
		return ctx.Err()
	}
	return a.limiter.Wait(ctx)
}

// Observe は呼び出し結果をレートに反映します。
// キャンセルやタイムアウトは上流の混雑とは無関係なので無視します。
func (a *Admission) Observe(err error) {
	if a == nil || a.ceiling == rate.Inf {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.limiter.Limit()
	next := current
	if err != nil {
		next = max(current/2, a.floor)
	} else if current < a.ceiling {
		next = min(current+a.ceiling/recoverySteps, a.ceiling)
	}
	if next != current {
		a.limiter.SetLimit(next)
		if err != nil {
			slog.Warn("Admission rate reduced after failure", "from", float64(current), "to", float64(next))
		}
	}
}

// Limit は現在の許可レート（毎秒）を返します。
func (a *Admission) Limit() rate.Limit {
	if a == nil {
		return rate.Inf
	}
	return a.limiter.Limit()
}
