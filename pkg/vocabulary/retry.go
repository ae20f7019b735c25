// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vocabulary

import (
	"context"
	"math/rand/v2"
	"time"
)

// retryPolicy mirrors the exponential backoff loop used elsewhere in the
// corpus for LLM call retries, with full jitter added on top since the
// vocabulary API is a shared external dependency that benefits from
// spreading retried requests out.
type retryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts:  3,
		initialDelay: 200 * time.Millisecond,
		multiplier:   2.0,
		maxDelay:     2 * time.Second,
	}
}

// retryableFunc performs one attempt. It returns (result, retryable, err):
// when err is non-nil and retryable is false, withRetry returns
// immediately without consuming further attempts.
type retryableFunc func(ctx context.Context, attempt int) (result any, retryable bool, err error)

// withRetry runs fn up to policy.maxAttempts times, sleeping a jittered
// exponential backoff between attempts. Context cancellation is checked
// distinctly from a retryable failure so callers see ctx.Err() rather
// than a stale upstream error when the caller gave up.
func withRetry(ctx context.Context, policy retryPolicy, fn retryableFunc) (any, error) {
	delay := policy.initialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.maxAttempts; attempt++ {
		result, retryable, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable || attempt == policy.maxAttempts {
			return nil, lastErr
		}

		jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jittered):
		}

		delay = time.Duration(float64(delay) * policy.multiplier)
		if delay > policy.maxDelay {
			delay = policy.maxDelay
		}
	}

	return nil, lastErr
}
