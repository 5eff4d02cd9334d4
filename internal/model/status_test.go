// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_LegalPath(t *testing.T) {
	// The full happy path for a container-validated install.
	path := []Status{
		StatusPending, StatusInProgress, StatusGenerating,
		StatusValidating, StatusInstalling, StatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		next, err := Transition(path[i], path[i+1])
		require.NoError(t, err, "%s -> %s", path[i], path[i+1])
		assert.Equal(t, path[i+1], next)
	}
}

func TestTransition_DryRunCompletesFromValidating(t *testing.T) {
	next, err := Transition(StatusValidating, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, next)
}

func TestTransition_IllegalEdges(t *testing.T) {
	cases := []struct{ from, to Status }{
		{StatusPending, StatusCompleted},
		{StatusPending, StatusValidating},
		{StatusGenerating, StatusInstalling},
		{StatusCompleted, StatusPending},
		{StatusCompleted, StatusFailed},
		{StatusSkipped, StatusInProgress},
		{StatusInstalling, StatusGenerating},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.to)
		require.Error(t, err, "%s -> %s should be rejected", tc.from, tc.to)
		assert.Contains(t, err.Error(), "illegal status transition")
		assert.Equal(t, tc.from, got, "status must not move on rejection")
	}
}

func TestTransition_FailedCanRequeue(t *testing.T) {
	next, err := Transition(StatusFailed, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, next)

	// But failed cannot jump anywhere else.
	_, err = Transition(StatusFailed, StatusInProgress)
	require.Error(t, err)
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusSkipped.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusInstalling.IsTerminal())
}

func TestParseStatus_UnknownDefaultsToPending(t *testing.T) {
	assert.Equal(t, StatusPending, ParseStatus(""))
	assert.Equal(t, StatusPending, ParseStatus("banana"))
	assert.Equal(t, StatusCompleted, ParseStatus("completed"))
	assert.Equal(t, StatusInProgress, ParseStatus("in_progress"))
}

func TestTool_SetStatusEnforcesMachine(t *testing.T) {
	tool := NewTool(ToolSpec{Name: "ripgrep", Version: "14.1.0"}, 2)
	assert.Equal(t, "ripgrep-14.1.0", tool.ID)
	assert.Equal(t, StatusPending, tool.Status)

	require.NoError(t, tool.SetStatus(StatusInProgress))
	err := tool.SetStatus(StatusCompleted)
	require.Error(t, err)
	assert.Equal(t, StatusInProgress, tool.Status)
}

func TestTool_FailTruncatesError(t *testing.T) {
	tool := NewTool(ToolSpec{Name: "jq", Version: "1.7"}, 3)
	long := strings.Repeat("x", 500)
	tool.Fail(long)

	assert.Equal(t, StatusFailed, tool.Status)
	assert.Len(t, tool.ErrorMessage, 200)

	tool2 := NewTool(ToolSpec{Name: "jq", Version: "1.7"}, 3)
	tool2.Fail("short message")
	assert.Equal(t, "short message", tool2.ErrorMessage)
}

func TestAnyFailed(t *testing.T) {
	assert.False(t, AnyFailed(nil))
	assert.False(t, AnyFailed([]ValidationResult{
		{Step: "shebang_check", Status: ValidationPassed},
		{Step: "shellcheck", Status: ValidationSkipped},
	}))
	assert.True(t, AnyFailed([]ValidationResult{
		{Step: "shebang_check", Status: ValidationPassed},
		{Step: "syntax_check", Status: ValidationFailed},
	}))
}
