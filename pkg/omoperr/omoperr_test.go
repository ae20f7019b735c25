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

package omoperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := Newf(CostLimitExceeded, "estimate %v exceeds cap %v", 5.0, 1.0)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CostLimitExceeded, code)

	_, ok = CodeOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(BackendUnavailable, cause, "dial postgres")

	assert.ErrorIs(t, err, cause)

	var typed *Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, BackendUnavailable, typed.Code)
}

func TestWithDetails(t *testing.T) {
	err := New(CostLimitExceeded, "cost cap exceeded").WithDetails(map[string]any{
		"estimated_cost_usd": 5.0,
		"max_query_cost_usd": 1.0,
	})
	assert.Equal(t, 5.0, err.Details["estimated_cost_usd"])
	assert.Equal(t, 1.0, err.Details["max_query_cost_usd"])
}
