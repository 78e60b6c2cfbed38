package audio

import "io"

// Tap is a live io.ReadCloser over captured PCM. Sends never block the capture
// callback: a full tap drops the buffer.
type Tap struct {
	rec    *Recorder
	ch     chan []byte
	buf    []byte
	closed bool // guarded by rec.mu
}

func newTap(rec *Recorder, depth int) *Tap {
	return &Tap{rec: rec, ch: make(chan []byte, depth)}
}

// send is called with rec.mu held.
func (t *Tap) send(p []byte) bool {
	if t.closed {
		return false
	}
	select {
	case t.ch <- p:
		return true
	default:
		return false
	}
}

// closeLocked is called with rec.mu held.
func (t *Tap) closeLocked() {
	if !t.closed {
		t.closed = true
		close(t.ch)
	}
}

// Read blocks until captured audio is available. It returns io.EOF after the
// recorder stopped and every pending buffer was read.
func (t *Tap) Read(p []byte) (int, error) {
	if len(t.buf) == 0 {
		b, ok := <-t.ch
		if !ok {
			return 0, io.EOF
		}
		t.buf = b
	}
	n := copy(p, t.buf)
	t.buf = t.buf[n:]
	return n, nil
}

// Close detaches the tap from the recorder.
func (t *Tap) Close() error {
	t.rec.detach(t)
	return nil
}
