package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func drainPlain(t *testing.T, q *Queue) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 4)
	for {
		n := q.ReadPlain(buf)
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out
}

func TestPlainWriteReadRoundTrip(t *testing.T) {
	q := New(false, false)
	q.WritePlain([]byte("hello, queue world"))
	require.Equal(t, "hello, queue world", string(drainPlain(t, q)))
}

func TestEncodedRoundTripPlainBytes(t *testing.T) {
	w := New(true, false)
	msg := []byte("the quick brown fox")
	w.Write(msg)
	w.CompleteLastWrite()

	encoded := drainPlain(t, w)

	r := New(false, true)
	r.WritePlain(encoded)

	var decoded []byte
	for {
		ev, ok := r.ReadEvent()
		if !ok {
			break
		}
		require.False(t, ev.IsControl)
		decoded = append(decoded, ev.Data)
	}
	require.Equal(t, msg, decoded)
}

func TestRunLengthEncodingRoundTrip(t *testing.T) {
	w := New(true, false)
	run := make([]byte, 20)
	for i := range run {
		run[i] = 'x'
	}
	w.Write(run)
	w.CompleteLastWrite()
	encoded := drainPlain(t, w)

	// 20 repeats of a non-control byte should collapse to a single
	// ctrlChar, count, byte triple instead of 20 literal bytes.
	require.Len(t, encoded, 3)

	r := New(false, true)
	r.WritePlain(encoded)
	var decoded []byte
	for {
		ev, ok := r.ReadEvent()
		if !ok {
			break
		}
		decoded = append(decoded, ev.Data)
	}
	require.Equal(t, run, decoded)
}

func TestRunLengthBoundaryAt33(t *testing.T) {
	w := New(true, false)
	run := make([]byte, 33)
	for i := range run {
		run[i] = 'z'
	}
	w.Write(run)
	w.CompleteLastWrite()
	encoded := drainPlain(t, w)
	require.Len(t, encoded, 3)

	r := New(false, true)
	r.WritePlain(encoded)
	var decoded []byte
	for {
		ev, ok := r.ReadEvent()
		if !ok {
			break
		}
		decoded = append(decoded, ev.Data)
	}
	require.Len(t, decoded, 33)
}

func TestControlCharInDataEscaped(t *testing.T) {
	w := New(true, false)
	msg := []byte{'a', ctrlChar, 'b'}
	w.Write(msg)
	w.CompleteLastWrite()
	encoded := drainPlain(t, w)

	r := New(false, true)
	r.WritePlain(encoded)
	var decoded []byte
	for {
		ev, ok := r.ReadEvent()
		if !ok {
			break
		}
		require.False(t, ev.IsControl)
		decoded = append(decoded, ev.Data)
	}
	require.Equal(t, msg, decoded)
}

func TestBeginBlockControlCarriesVersion(t *testing.T) {
	w := New(true, false)
	w.WriteBeginBlock(7)
	w.Write([]byte("x"))
	w.CompleteLastWrite()
	encoded := drainPlain(t, w)

	r := New(false, true)
	r.WritePlain(encoded)

	ev, ok := r.ReadEvent()
	require.True(t, ok)
	require.True(t, ev.IsControl)
	require.Equal(t, CtrlBeginBlock, ev.Code)
	require.Equal(t, 7, ev.Version)

	ev, ok = r.ReadEvent()
	require.True(t, ok)
	require.False(t, ev.IsControl)
	require.Equal(t, byte('x'), ev.Data)
}

func TestFlushCounterIncrementsAndDecrements(t *testing.T) {
	w := New(true, false)
	w.Write([]byte("a"))
	w.WriteControl(CtrlFlush)
	w.Write([]byte("b"))
	require.Equal(t, 1, w.FlushCount())
	w.CompleteLastWrite()
	encoded := drainPlain(t, w)

	r := New(false, true)
	r.WritePlain(encoded)
	require.Equal(t, 1, r.FlushCount())

	for {
		ev, ok := r.ReadEvent()
		if !ok {
			break
		}
		if ev.IsControl && ev.Code == CtrlFlush {
			require.Equal(t, 0, r.FlushCount())
		}
	}
}

func TestBytesReportsLookaheadByte(t *testing.T) {
	w := New(true, false)
	w.Write([]byte("m"))
	require.Equal(t, 1, w.Bytes(), "a single pending byte is held back as run-length lookahead")
	w.CompleteLastWrite()
	require.Equal(t, 1, w.Bytes())
}

func TestSpansMultipleBlocksWithoutLoss(t *testing.T) {
	q := New(false, false)
	big := make([]byte, defaultBlockSize*3+17)
	for i := range big {
		big[i] = byte(i)
	}
	q.WritePlain(big)
	require.Equal(t, big, drainPlain(t, q))
}
