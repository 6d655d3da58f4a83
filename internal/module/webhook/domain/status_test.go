package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:   {StatusCompleted, StatusFailed, StatusCancelled, StatusExpired},
		StatusCompleted: {StatusRefunded},
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_RejectedEdges(t *testing.T) {
	tests := []struct{ from, to Status }{
		{StatusRefunded, StatusCompleted},
		{StatusFailed, StatusCompleted},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusPending},
		{StatusExpired, StatusPending},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.False(t, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, Status("bogus").IsTerminal())
}

func TestStatus_AllowedTransitionsIsCopy(t *testing.T) {
	got := StatusPending.AllowedTransitions()
	require.Len(t, got, 4)
	got[0] = StatusRefunded
	assert.True(t, StatusPending.CanTransitionTo(StatusCompleted))
}
