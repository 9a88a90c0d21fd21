package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// ReplayPort plays back recorded device lines at a fixed interval, looping
// at the end. It lets the logger run on the bench without a receiver.
// Writes are discarded.
type ReplayPort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	done chan struct{}
	once sync.Once
}

// NewReplayPort starts replaying lines, one every interval.
func NewReplayPort(lines []string, interval time.Duration) *ReplayPort {
	r, w := io.Pipe()
	p := &ReplayPort{r: r, w: w, done: make(chan struct{})}
	go p.play(lines, interval)
	return p
}

// NewReplaySerialMux wraps a ReplayPort in a SerialMux.
func NewReplaySerialMux(name string, lines []string, interval time.Duration) *SerialMux[*ReplayPort] {
	return NewSerialMux(name, NewReplayPort(lines, interval))
}

func (p *ReplayPort) play(lines []string, interval time.Duration) {
	defer p.w.Close()
	if len(lines) == 0 {
		<-p.done
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; ; i = (i + 1) % len(lines) {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}
		if _, err := io.WriteString(p.w, strings.TrimRight(lines[i], "\r\n")+"\r\n"); err != nil {
			return
		}
	}
}

func (p *ReplayPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *ReplayPort) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, errPortClosed
	default:
		return len(b), nil
	}
}

// Close stops playback; pending reads return io.EOF.
func (p *ReplayPort) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.w.Close()
	})
	return nil
}

// TestableSerialPort is a SerialPorter with scripted reads and captured
// writes.
type TestableSerialPort struct {
	mu sync.Mutex

	readBuffer  bytes.Buffer
	writeBuffer bytes.Buffer

	// ShortWrite makes Write report one byte fewer than requested.
	ShortWrite bool
	// WriteError is returned by the next Write call if set.
	WriteError error
	// CloseError is returned by Close if set.
	CloseError error

	closed   bool
	readCond *sync.Cond
}

// NewTestableSerialPort returns a port whose reads block until data is
// added with AddReadData or the port is closed.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.closed && t.readBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.readBuffer.Len() == 0 {
		return 0, io.EOF
	}
	return t.readBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite && len(p) > 0 {
		p = p[:len(p)-1]
	}
	return t.writeBuffer.Write(p)
}

// Close marks the port closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// Closed reports whether Close was called.
func (t *TestableSerialPort) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// AddReadData queues data for subsequent reads.
func (t *TestableSerialPort) AddReadData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuffer.WriteString(data)
	t.readCond.Broadcast()
}

// Written returns everything written to the port.
func (t *TestableSerialPort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeBuffer.String()
}
