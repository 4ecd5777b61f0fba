package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Outbox {
	t.Helper()
	box, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { box.Close() })
	return box
}

func TestAppendAndGet(t *testing.T) {
	box := openTemp(t)

	require.NoError(t, box.Append(1, []byte(`{"seq":1}`)))

	rec, err := box.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Seq)
	assert.Equal(t, StateNew, rec.State)
	assert.Equal(t, uint32(0), rec.Retries)
	assert.Equal(t, []byte(`{"seq":1}`), rec.Payload)
}

func TestStateTransitions(t *testing.T) {
	box := openTemp(t)
	require.NoError(t, box.Append(7, []byte("payload")))

	now := time.Now().UnixNano()

	require.NoError(t, box.MarkSent(7, now))
	rec, err := box.Get(7)
	require.NoError(t, err)
	assert.Equal(t, StateSent, rec.State)
	assert.Equal(t, uint32(1), rec.Retries)
	assert.Equal(t, now, rec.LastAttempt)

	require.NoError(t, box.MarkFailed(7, now+1))
	rec, err = box.Get(7)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, uint32(1), rec.Retries)

	require.NoError(t, box.MarkSent(7, now+2))
	require.NoError(t, box.MarkAcked(7, now+3))
	rec, err = box.Get(7)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, rec.State)
	assert.Equal(t, uint32(2), rec.Retries)
}

func TestScanPendingSkipsSentAndAcked(t *testing.T) {
	box := openTemp(t)

	require.NoError(t, box.Append(1, []byte("a")))
	require.NoError(t, box.Append(2, []byte("b")))
	require.NoError(t, box.Append(3, []byte("c")))
	require.NoError(t, box.Append(4, []byte("d")))

	now := time.Now().UnixNano()
	require.NoError(t, box.MarkSent(2, now))
	require.NoError(t, box.MarkSent(3, now))
	require.NoError(t, box.MarkAcked(3, now))
	require.NoError(t, box.MarkSent(4, now))
	require.NoError(t, box.MarkFailed(4, now))

	var seen []uint64
	err := box.ScanPending(func(rec *Record) error {
		seen = append(seen, rec.Seq)
		return nil
	})
	require.NoError(t, err)

	// 1 is NEW, 4 is FAILED; 2 is in flight, 3 delivered.
	assert.Equal(t, []uint64{1, 4}, seen)
}

func TestScanPendingSequenceOrder(t *testing.T) {
	box := openTemp(t)

	for _, seq := range []uint64{30, 5, 100, 12} {
		require.NoError(t, box.Append(seq, []byte("x")))
	}

	var seen []uint64
	require.NoError(t, box.ScanPending(func(rec *Record) error {
		seen = append(seen, rec.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{5, 12, 30, 100}, seen)
}

func TestTruncateAckedUpTo(t *testing.T) {
	box := openTemp(t)

	now := time.Now().UnixNano()
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, box.Append(seq, []byte("x")))
	}
	for _, seq := range []uint64{1, 2, 4} {
		require.NoError(t, box.MarkSent(seq, now))
		require.NoError(t, box.MarkAcked(seq, now))
	}

	require.NoError(t, box.TruncateAckedUpTo(3))

	_, err := box.Get(1)
	assert.Error(t, err)
	_, err = box.Get(2)
	assert.Error(t, err)

	// 3 is still NEW, 4 is ACKED but above the cutoff.
	rec, err := box.Get(3)
	require.NoError(t, err)
	assert.Equal(t, StateNew, rec.State)
	rec, err = box.Get(4)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, rec.State)
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()

	box, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, box.Append(42, []byte("durable")))
	require.NoError(t, box.Close())

	box, err = Open(dir)
	require.NoError(t, err)
	defer box.Close()

	rec, err := box.Get(42)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), rec.Payload)
	assert.Equal(t, StateNew, rec.State)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := &Record{Seq: 9, State: StateFailed, Retries: 3, LastAttempt: 1234567, Payload: []byte("hello")}

	got, err := decodeRecord(9, encodeRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = decodeRecord(1, []byte{0, 1, 2})
	assert.Error(t, err)
}
