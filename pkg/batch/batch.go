package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize は同時に投入するタスク数の既定値です。
	DefaultBatchSize = 3
	// DefaultCooldown はバッチ間に挟む固定の待機時間です。
	DefaultCooldown = 1500 * time.Millisecond
)

// Task は1件の独立した生成呼び出しです。
type Task[T any] func(ctx context.Context) (T, error)

// Result はタスク1件の結果です。Index は投入順の位置です。
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// OK は成功したかどうかを返します。
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Policy はファンアウトの方式を表します。Size が 0 以下なら全件を同時に投入します。
type Policy struct {
	Size     int
	Cooldown time.Duration
}

// Batched は固定サイズのバッチとバッチ間クールダウンを持つポリシーです。
func Batched(size int, cooldown time.Duration) Policy {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return Policy{Size: size, Cooldown: cooldown}
}

// Unbounded はすべてのタスクを一度に投入するポリシーです。
func Unbounded() Policy {
	return Policy{}
}

func (p Policy) String() string {
	if p.Size <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("batched(size=%d, cooldown=%s)", p.Size, p.Cooldown)
}

// Options は Run の実行パラメータです。
type Options struct {
	Policy    Policy
	Admission *Admission
	// Label はログ出力用の名前です。
	Label string
}

// Run はタスクをポリシーに従って実行し、投入順に並んだ結果を返します。
// 1件の失敗で他のタスクが中断されることはありません。
// ctx がキャンセルされた場合、未着手のタスクには ctx.Err() が記録されます。
func Run[T any](ctx context.Context, opts Options, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	for i := range results {
		results[i].Index = i
	}
	if len(tasks) == 0 {
		return results
	}

	size := opts.Policy.Size
	if size <= 0 || size > len(tasks) {
		size = len(tasks)
	}

	logger := slog.With("batch", opts.Label, "policy", opts.Policy.String(), "tasks", len(tasks))
	startTime := time.Now()

	for start := 0; start < len(tasks); start += size {
		end := min(start+size, len(tasks))

		if start > 0 && opts.Policy.Cooldown > 0 {
			if err := sleep(ctx, opts.Policy.Cooldown); err != nil {
				markRemaining(results[start:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			markRemaining(results[start:], err)
			break
		}

		// 各タスクは自分のスロットにのみ書き込み、エラーは errgroup に返さない
		var eg errgroup.Group
		for i := start; i < end; i++ {
			eg.Go(func() error {
				results[i].Value, results[i].Err = runOne(ctx, opts.Admission, tasks[i])
				return nil
			})
		}
		_ = eg.Wait()
		logger.Debug("Batch settled", "from", start+1, "to", end)
	}

	succeeded, failed := Count(results)
	logger.Info("Fan-out completed",
		"succeeded", succeeded,
		"failed", failed,
		"duration", time.Since(startTime).Round(time.Millisecond))
	return results
}

func runOne[T any](ctx context.Context, adm *Admission, task Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	if err := adm.Wait(ctx); err != nil {
		return value, err
	}
	value, err = task(ctx)
	adm.Observe(err)
	return value, err
}

func markRemaining[T any](rest []Result[T], err error) {
	for i := range rest {
		rest[i].Err = err
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Count は成功件数と失敗件数を返します。
func Count[T any](results []Result[T]) (succeeded, failed int) {
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// RequireAll は全件成功のときだけ値を投入順で返します。
// 1件でも失敗していれば値は返さず、すべてのエラーを結合して返します。
func RequireAll[T any](results []Result[T]) ([]T, error) {
	var errs []error
	values := make([]T, len(results))
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		values[i] = r.Value
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return values, nil
}

// Partition は結果を成功と失敗に振り分けます。どちらも投入順を保ちます。
func Partition[T any](results []Result[T]) (succeeded, failed []Result[T]) {
	for _, r := range results {
		if r.Err == nil {
			succeeded = append(succeeded, r)
		} else {
			failed = append(failed, r)
		}
	}
	return succeeded, failed
}
