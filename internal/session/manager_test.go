package session

import (
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "S_IDLE", S_IDLE.String())
	assert.Equal(t, "S_RESET_SENT", S_RESET_SENT.String())
	assert.Equal(t, "S_RESET_RECEIVED", S_RESET_RECEIVED.String())
	assert.Equal(t, "S_ESTABLISHED", S_ESTABLISHED.String())
	assert.Equal(t, "S_INVALID", State(42).String())
}

func TestManager_transitions(t *testing.T) {
	m := NewManager(log.Log)
	require.Equal(t, S_IDLE, m.State())
	require.False(t, m.Established())

	m.SetState(S_RESET_SENT)
	require.Equal(t, S_RESET_SENT, m.State())

	m.SetState(S_ESTABLISHED)
	require.True(t, m.Established())
}

func TestManager_NewSession(t *testing.T) {
	m := NewManager(log.Log)
	before := m.SessionID()

	got := m.NewSession(S_RESET_SENT)
	require.Equal(t, S_RESET_SENT, m.State())
	require.Equal(t, got, m.SessionID())
	require.NotEqual(t, before, got, "a reset must mint a fresh session identity")
}
