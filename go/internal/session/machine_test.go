package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type endRecorder struct {
	results []Result
}

func (e *endRecorder) record(r Result) { e.results = append(e.results, r) }

func TestSessionCountsTapsUntilTimeout(t *testing.T) {
	for _, taps := range []int{0, 1, 5, 120} {
		rec := &endRecorder{}
		m := NewMachine(DefaultDuration, rec.record)
		require.True(t, m.Start())

		for i := 0; i < taps; i++ {
			assert.True(t, m.RecordTap())
		}
		for i := 0; i < DefaultDuration-1; i++ {
			assert.True(t, m.Tick())
		}
		assert.Equal(t, Playing, m.State().Phase)
		assert.True(t, m.Tick())

		st := m.State()
		assert.Equal(t, Ended, st.Phase)
		assert.Equal(t, 0, st.Remaining)
		assert.True(t, st.Ended)
		require.Len(t, rec.results, 1)
		assert.Equal(t, int64(taps), rec.results[0].Tally)
		assert.Equal(t, EndTimeout, rec.results[0].Reason)
		assert.Equal(t, st.SessionID, rec.results[0].SessionID)
	}
}

func TestTapsOutsidePlayingAreIgnored(t *testing.T) {
	rec := &endRecorder{}
	m := NewMachine(3, rec.record)

	assert.False(t, m.RecordTap())
	assert.Zero(t, m.State().Tally)

	require.True(t, m.Start())
	m.RecordTap()
	m.RecordTap()
	for i := 0; i < 3; i++ {
		m.Tick()
	}
	assert.False(t, m.RecordTap())
	assert.False(t, m.Tick())
	assert.Equal(t, int64(2), m.State().Tally)
	require.Len(t, rec.results, 1)
	assert.Equal(t, int64(2), rec.results[0].Tally)
}

func TestStopEndsImmediately(t *testing.T) {
	rec := &endRecorder{}
	m := NewMachine(DefaultDuration, rec.record)

	assert.False(t, m.Stop())
	require.True(t, m.Start())
	m.RecordTap()
	m.Tick()
	assert.True(t, m.Stop())
	assert.False(t, m.Stop())

	st := m.State()
	assert.Equal(t, Ended, st.Phase)
	assert.Equal(t, DefaultDuration-1, st.Remaining)
	require.Len(t, rec.results, 1)
	assert.Equal(t, EndStopped, rec.results[0].Reason)
	assert.Equal(t, int64(1), rec.results[0].Tally)
}

func TestTransitions(t *testing.T) {
	m := NewMachine(0, nil)
	assert.Equal(t, DefaultDuration, m.Duration())

	st := m.State()
	assert.Equal(t, Idle, st.Phase)
	assert.Equal(t, DefaultDuration, st.Remaining)
	assert.False(t, st.Started)

	assert.False(t, m.Reset())
	require.True(t, m.Start())
	first := m.State().SessionID
	assert.False(t, m.Start())
	assert.False(t, m.Reset())

	m.RecordTap()
	require.True(t, m.Stop())

	// a new session may start straight from Ended
	require.True(t, m.Start())
	st = m.State()
	assert.NotEqual(t, first, st.SessionID)
	assert.Zero(t, st.Tally)
	assert.Equal(t, DefaultDuration, st.Remaining)

	require.True(t, m.Stop())
	require.True(t, m.Reset())
	st = m.State()
	assert.Equal(t, Idle, st.Phase)
	assert.Zero(t, st.Tally)
	assert.False(t, st.Ended)
}

func TestTickSessionDropsStaleTicks(t *testing.T) {
	m := NewMachine(5, nil)
	require.True(t, m.Start())
	old := m.State().SessionID
	require.True(t, m.Stop())
	require.True(t, m.Start())

	assert.False(t, m.TickSession(old))
	assert.Equal(t, 5, m.State().Remaining)
	assert.True(t, m.TickSession(m.State().SessionID))
	assert.Equal(t, 4, m.State().Remaining)
}
