package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

// RetryOptions tunes RunWithRetry
type RetryOptions struct {
	Timings *types.Timings // RetryDelay and MaxTransferRetries (0 = until cancelled)
	Clock   utils.Clock
	Console *utils.Console
}

// RunWithRetry transfers task, retrying transient failures after RetryDelay
// (or the server's Retry-After, if longer). Permanent errors and
// cancellation are returned immediately.
func RunWithRetry(ctx context.Context, e *Executor, task types.PendingDownloadTask, base int64, progress ProgressFunc, opts RetryOptions) error {
	clock := opts.Clock
	if clock == nil {
		clock = utils.RealClock{}
	}
	maxRetries := opts.Timings.GetMaxTransferRetries()

	for attempt := 0; ; attempt++ {
		err := e.Transfer(ctx, task, base, progress)
		if err == nil || errors.Is(err, ErrCancelled) || errors.Is(err, ErrTransferActive) {
			return err
		}

		var te *Error
		if !errors.As(err, &te) || !te.Retryable {
			return err
		}
		if maxRetries > 0 && attempt >= maxRetries {
			utils.Debug("Transfer: giving up on %s after %d retries", task.RelativePath, attempt)
			return err
		}

		delay := opts.Timings.GetRetryDelay()
		if te.RetryAfter > delay {
			delay = te.RetryAfter
		}
		msg := "Network error on %s, retrying in %s: %v"
		if opts.Console != nil {
			opts.Console.Logf(msg, task.RelativePath, delay.Round(time.Millisecond), te.Err)
		} else {
			utils.Debug(msg, task.RelativePath, delay.Round(time.Millisecond), te.Err)
		}

		if err := utils.Sleep(ctx, clock, delay); err != nil {
			return ErrCancelled
		}
	}
}
