package canbus

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTraceWriter(&buf)
	at := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	tw.now = func() time.Time { return at }

	frames := []Frame{
		MustFrame(0x0AA, []byte{1, 2, 3}),
		MustFrame(0x1806E5F4, nil),
		{ID: 0x120, RTR: true},
	}
	require.NoError(t, tw.Write(DirTx, frames[0]))
	require.NoError(t, tw.Write(DirRx, frames[1]))
	require.NoError(t, tw.Write(DirTx, frames[2]))

	tr := NewTraceReader(&buf)
	for i, want := range frames {
		rec, err := tr.Next()
		require.NoError(t, err, "record %d", i)
		assert.True(t, rec.Time.Equal(at), "record %d time %v", i, rec.Time)
		assert.Equal(t, want, rec.Frame(), "record %d", i)
	}
	_, err := tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTraceReader_Corrupt(t *testing.T) {
	tr := NewTraceReader(bytes.NewReader([]byte{0xff, 0x00, 0x13}))
	_, err := tr.Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestRecordingBus(t *testing.T) {
	lb := NewLoopbackBus()
	defer lb.Close()

	var buf bytes.Buffer
	tw := NewTraceWriter(&buf)
	a := NewRecordingBus(lb.Open(), tw)
	b := NewRecordingBus(lb.Open(), tw)

	require.NoError(t, a.Send(MustFrame(0x120, []byte{1})))
	_, ok, err := b.TryReceive()
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, _ = b.TryReceive()
	require.False(t, ok)

	tr := NewTraceReader(&buf)
	first, err := tr.Next()
	require.NoError(t, err)
	second, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, DirTx, first.Dir)
	assert.Equal(t, DirRx, second.Dir)
	assert.Equal(t, uint32(0x120), second.ID)
	assert.Equal(t, []byte{1}, second.Data)
	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, a.TraceErr())
}
