package serialmux

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest creates a request that passes tsweb's loopback check.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		require.True(t, ok, "channel closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func TestMonitor_FansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gps", port)

	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- mux.Monitor(ctx) }()

	port.AddReadData("$GPRMC,one\r\n\r\n$GPGGA,two\n")

	assert.Equal(t, "$GPRMC,one", recv(t, a))
	assert.Equal(t, "$GPGGA,two", recv(t, a))
	assert.Equal(t, "$GPRMC,one", recv(t, b))
	assert.Equal(t, "$GPGGA,two", recv(t, b))

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.EqualValues(t, 2, mux.Stats().Lines)
}

func TestMonitor_SlowSubscriberDrops(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("imu", port)
	_, slow := mux.Subscribe()

	var data strings.Builder
	for i := 0; i < subscriberBacklog+10; i++ {
		data.WriteString("0.1,0.2,1.0\n")
	}
	port.AddReadData(data.String())
	require.NoError(t, port.Close())

	require.NoError(t, mux.Monitor(context.Background()))
	st := mux.Stats()
	assert.EqualValues(t, subscriberBacklog+10, st.Lines)
	assert.EqualValues(t, 10, st.Dropped)
	assert.Len(t, slow, subscriberBacklog)
}

func TestMonitor_ReadError(t *testing.T) {
	mux := NewSerialMux("gps", errReader{})
	err := mux.Monitor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gps")
}

type errReader struct{}

func (errReader) Read([]byte) (int, error)    { return 0, errors.New("device unplugged") }
func (errReader) Write(p []byte) (int, error) { return len(p), nil }
func (errReader) Close() error                { return nil }

func TestUnsubscribeAndClose(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gps", port)

	id, a := mux.Subscribe()
	_, b := mux.Subscribe()
	assert.Equal(t, 2, mux.Stats().Subscribers)

	mux.Unsubscribe(id)
	_, ok := <-a
	assert.False(t, ok)
	mux.Unsubscribe(id)

	require.NoError(t, mux.Close())
	_, ok = <-b
	assert.False(t, ok)
	assert.True(t, port.Closed())
	assert.Zero(t, mux.Stats().Subscribers)

	_, late := mux.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after Close yields a closed channel")

	require.NoError(t, mux.Close())
}

func TestSendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gps", port)

	require.NoError(t, mux.SendCommand("$PMTK220,100*2F"))
	require.NoError(t, mux.SendCommand("$PMTK251,38400*27\r\n"))
	assert.Equal(t, "$PMTK220,100*2F\r\n$PMTK251,38400*27\r\n", port.Written())

	port.ShortWrite = true
	assert.ErrorIs(t, mux.SendCommand("X"), ErrWriteFailed)

	port.ShortWrite = false
	port.WriteError = errors.New("boom")
	err := mux.Initialize("A", "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"A"`)
}

func TestInitialize(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gps", port)
	require.NoError(t, mux.Initialize("$A*00", "$B*00"))
	assert.Equal(t, "$A*00\r\n$B*00\r\n", port.Written())
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gps", port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name   string
		method string
		form   url.Values
		status int
	}{
		{"valid", http.MethodPost, url.Values{"command": {"$PMTK220,100*2F"}}, http.StatusOK},
		{"empty", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest},
		{"get", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := localHostRequest(tt.method, "/debug/gps-send-command-api", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, "$PMTK220,100*2F\r\n", port.Written())
}

func TestAttachAdminRoutes_Tail(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gps", port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/gps-tail", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	ping, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", ping)

	require.Eventually(t, func() bool { return mux.Stats().Subscribers == 1 }, 2*time.Second, 10*time.Millisecond)
	port.AddReadData("$GPRMC,tail\n")

	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			assert.Equal(t, "data: $GPRMC,tail\n", line)
			break
		}
	}
}
