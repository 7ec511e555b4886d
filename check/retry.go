package check

import (
	"context"
	"errors"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"tempo-notifier/pkg/approval"
)

// RunWithRetry repeats a failing check with backoff. Authentication
// failures are not retried: the session will not fix itself, and each
// attempt would burn a probe against Jira.
func (c *Checker) RunWithRetry(ctx context.Context, url string, attempts uint) approval.Result {
	var result approval.Result

	err := retry.Do(
		func() error {
			result = c.Run(ctx, url)
			if result.Success {
				return nil
			}
			failure := errors.New(result.Error)
			if result.ErrorType == approval.ErrorAuth {
				return retry.Unrecoverable(failure)
			}
			return failure
		},
		retry.Attempts(attempts),
		retry.Delay(5*time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Retrying approvals check", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		c.logger.Error("Approvals check gave up", "error", err)
	}

	return result
}
