package conn

import (
	"github.com/sirupsen/logrus"

	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/queue"
)

// encodedWriter serializes envelopes and runs them through an encoding
// queue.Queue, so the control-code/run-length layer (flush markers,
// keepalives) rides the same wire bytes the peer's decodedReader expects.
type encodedWriter struct {
	q *queue.Queue
}

func newEncodedWriter() *encodedWriter {
	return &encodedWriter{q: queue.New(true, false)}
}

// write serializes env and marks its end with a flush control, so the
// peer's decoder knows exactly where one envelope ends and the next
// begins.
func (w *encodedWriter) write(env *envelope.Envelope) error {
	data, err := envelope.Serialize(env)
	if err != nil {
		return err
	}
	if _, err := w.q.Write(data); err != nil {
		return err
	}
	w.q.WriteControl(queue.CtrlFlush)
	return nil
}

// writeKeepalive emits a bare keepalive control with no accompanying
// data, so an idle peer can tell the connection apart from a dead one.
func (w *encodedWriter) writeKeepalive() {
	w.q.WriteControl(queue.CtrlKeepalive)
}

// flushReady drains whatever encoded bytes are ready to go out, completing
// any pending run-length lookahead first.
func (w *encodedWriter) flushReady() ([]byte, error) {
	w.q.CompleteLastWrite()
	n := w.q.Bytes()
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got := w.q.ReadPlain(buf)
	return buf[:got], nil
}

// decodedReader is the read-side counterpart: raw bytes off the socket
// feed a decoding queue.Queue, and a completed envelope is assembled each
// time a flush control closes out the bytes collected since the previous
// one.
type decodedReader struct {
	q       *queue.Queue
	pending []byte
}

func newDecodedReader() *decodedReader {
	return &decodedReader{q: queue.New(false, true)}
}

// feed appends raw socket bytes and returns every envelope that became
// complete as a result.
func (r *decodedReader) feed(raw []byte) ([]*envelope.Envelope, error) {
	if _, err := r.q.Write(raw); err != nil {
		return nil, err
	}

	var out []*envelope.Envelope
	for {
		ev, ok := r.q.ReadEvent()
		if !ok {
			break
		}
		if ev.IsControl {
			if ev.Code == queue.CtrlFlush && len(r.pending) > 0 {
				env, _, err := envelope.Deserialize(r.pending)
				r.pending = nil
				if err != nil {
					logrus.Debugf("conn: dropping malformed envelope between flush markers: %v", err)
				} else {
					out = append(out, env)
				}
			}
			continue
		}
		r.pending = append(r.pending, ev.Data)
	}
	return out, nil
}
