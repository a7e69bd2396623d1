package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		current Status
		target  Status
		want    Decision
	}{
		{StatusPending, StatusCompleted, DecisionApply},
		{StatusPending, StatusFailed, DecisionApply},
		{StatusCompleted, StatusRefunded, DecisionApply},

		{StatusPending, StatusPending, DecisionNoop},
		{StatusCompleted, StatusCompleted, DecisionNoop},
		{StatusFailed, StatusFailed, DecisionNoop},
		{StatusRefunded, StatusRefunded, DecisionNoop},
		{StatusCompleted, StatusFailed, DecisionNoop},
		{StatusRefunded, StatusCompleted, DecisionNoop},
		{StatusRefunded, StatusFailed, DecisionNoop},

		{StatusPending, StatusRefunded, DecisionReject},
		{StatusFailed, StatusRefunded, DecisionReject},
		{StatusFailed, StatusCompleted, DecisionReject},
		{StatusCompleted, StatusPending, DecisionReject},
		{StatusFailed, StatusPending, DecisionReject},
		{StatusRefunded, StatusPending, DecisionReject},
	}

	for _, tt := range tests {
		t.Run(string(tt.current)+"->"+string(tt.target), func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.current, tt.target))
		})
	}
}

func TestDecideNeverLeavesFinalStateExceptRefund(t *testing.T) {
	all := []Status{StatusPending, StatusCompleted, StatusFailed, StatusRefunded}
	for _, current := range all {
		if !current.IsFinal() {
			continue
		}
		for _, target := range all {
			if Decide(current, target) != DecisionApply {
				continue
			}
			assert.Equal(t, StatusCompleted, current)
			assert.Equal(t, StatusRefunded, target)
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus(" Completed ")
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, s)

	_, ok = ParseStatus("paid")
	assert.False(t, ok)
}
