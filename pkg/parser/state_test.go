package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThreadState(t *testing.T) {
	tests := []struct {
		token    string
		expected ThreadState
		wantErr  bool
	}{
		{"NEW", StateNew, false},
		{"BLOCKED", StateBlocked, false},
		{"TERMINATED", StateTerminated, false},
		{"RUNNABLE", StateRunnable, false},
		{"WAITING", StateWaiting, false},
		{"TIMED_WAITING", StateTimedWaiting, false},
		{"waiting", StateUnset, true},
		{"SLEEPING", StateUnset, true},
		{"", StateUnset, true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			state, err := ParseThreadState(tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidState)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, state)
		})
	}
}

func TestThreadState_StringAndValid(t *testing.T) {
	for _, s := range AllStates {
		assert.True(t, s.Valid(), s.String())
		parsed, err := ParseThreadState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	assert.False(t, StateUnset.Valid())
	assert.Equal(t, "UNSET", StateUnset.String())
	assert.False(t, ThreadState(42).Valid())
	assert.Equal(t, "ThreadState(42)", ThreadState(42).String())
}

func TestStateNames_FixedOrder(t *testing.T) {
	assert.Equal(t, []string{"NEW", "BLOCKED", "TERMINATED", "RUNNABLE", "WAITING", "TIMED_WAITING"}, StateNames())
}

func TestSuggestState(t *testing.T) {
	assert.Equal(t, "WAITING", SuggestState("WAITNG"))
	assert.Equal(t, "RUNNABLE", SuggestState("runable"))
	assert.Equal(t, "TIMED_WAITING", SuggestState("timed-waiting"))
	assert.Equal(t, "BLOCKED", SuggestState("blocked"))
	assert.Equal(t, "", SuggestState("xyzzy"))
	assert.Equal(t, "", SuggestState(""))
}
