// Package serialmux reads newline-terminated sentences from a serial device
// and fans each line out to every subscriber. The GPS and IMU producers each
// own one mux; the debug tail route subscribes alongside them.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/banshee-data/racelogger/internal/httputil"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBacklog is how many lines a slow subscriber may fall behind
// before lines are dropped for it.
const subscriberBacklog = 64

// SerialMux multiplexes the line stream of a single serial device.
type SerialMux[T SerialPorter] struct {
	name         string
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	lines   atomic.Int64
	dropped atomic.Int64
}

// SerialMuxInterface is implemented by SerialMux and DisabledSerialMux.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel receiving every line read
	// from the device. The channel is closed on Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one command line to the device.
	SendCommand(string) error
	// Initialize sends each configuration command in order.
	Initialize(commands ...string) error
	// Monitor reads lines until ctx ends or the device fails.
	Monitor(context.Context) error
	Close() error
	Stats() Stats
	// AttachAdminRoutes registers the debug routes under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Stats counts lines seen by the mux.
type Stats struct {
	Lines       int64 `json:"lines"`
	Dropped     int64 `json:"dropped"`
	Subscribers int   `json:"subscribers"`
}

// NewSerialMux wraps port. name identifies the device in logs and debug
// routes, e.g. "gps".
func NewSerialMux[T SerialPorter](name string, port T) *SerialMux[T] {
	return &SerialMux[T]{
		name:        name,
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// Name returns the device name given at construction.
func (s *SerialMux[T]) Name() string {
	return s.name
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBacklog)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.isClosing() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand writes command to the port, terminated with CRLF as NMEA
// receivers expect.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command = strings.TrimSuffix(command, "\r") + "\r\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Initialize sends the configured start-up commands, for example the
// receiver update rate.
func (s *SerialMux[T]) Initialize(commands ...string) error {
	for _, command := range commands {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("%s: failed to send start command %q: %w", s.name, command, err)
		}
	}
	return nil
}

// Monitor monitors the serial port for lines and sends them to subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs apart from the select below so that
	// cancellation is observed while waiting for the device
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- strings.TrimRight(scan.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if s.isClosing() {
				return nil
			}
			return fmt.Errorf("%s: %w", s.name, err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !s.isClosing() {
						return fmt.Errorf("%s: %w", s.name, err)
					}
				default:
				}
				return nil
			}
			if s.isClosing() {
				return nil
			}
			if line == "" {
				continue
			}
			s.lines.Add(1)

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					s.dropped.Add(1)
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

// Close closes every subscriber channel and the port.
func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

// Stats returns the line counters.
func (s *SerialMux[T]) Stats() Stats {
	s.subscriberMu.Lock()
	n := len(s.subscribers)
	s.subscriberMu.Unlock()
	return Stats{Lines: s.lines.Load(), Dropped: s.dropped.Load(), Subscribers: n}
}

// AttachAdminRoutes registers <name>-tail, a Server-Sent Events stream of
// device lines, and <name>-send-command-api for writing commands.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc(s.name+" serial lines", func() any { return s.Stats().Lines })

	debug.HandleSilentFunc(s.name+"-send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			httputil.BadRequest(w, "missing command")
			return
		}
		if err := s.SendCommand(command); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to write command: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"wrote": command, "port": s.name})
	})

	debug.HandleSilentFunc(s.name+"-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
