package bus

import (
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// reopenBackoff is the minimum gap between reconnect attempts after the
// serial port reports a fault.
const reopenBackoff = 500 * time.Millisecond

// SerialTransport adapts a serial port to the Transport boundary. It does
// not discover devices or manage baud beyond what it is given; a lost port
// is retried lazily with a backoff so the receiver can keep idling on it.
type SerialTransport struct {
	conf   *serial.Config
	logger *logrus.Entry

	mu          sync.Mutex
	port        *serial.Port
	lastAttempt time.Time
}

// NewSerialTransport opens the serial device.
func NewSerialTransport(device string, baud int, logger *logrus.Entry) (*SerialTransport, error) {
	conf := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 10 * time.Millisecond,
	}

	port, err := serial.OpenPort(conf)
	if err != nil {
		return nil, err
	}

	return &SerialTransport{
		conf:   conf,
		logger: logger.WithField("device", device),
		port:   port,
	}, nil
}

// handle returns the open port, reopening it if a previous fault dropped it
// and the backoff has elapsed.
func (t *SerialTransport) handle() *serial.Port {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		return t.port
	}
	if time.Since(t.lastAttempt) < reopenBackoff {
		return nil
	}

	t.lastAttempt = time.Now()
	port, err := serial.OpenPort(t.conf)
	if err != nil {
		t.logger.WithError(err).Debug("serial reopen failed")
		return nil
	}

	t.logger.Info("serial port reopened")
	t.port = port
	return port
}

func (t *SerialTransport) drop() {
	t.mu.Lock()
	if t.port != nil {
		t.port.Close()
		t.port = nil
	}
	t.mu.Unlock()
}

// Write implements Transport.
func (t *SerialTransport) Write(data []byte) error {
	port := t.handle()
	if port == nil {
		return ErrSerialUnavailable
	}

	if _, err := port.Write(data); err != nil {
		t.drop()
		return err
	}
	return nil
}

// ReadByte implements Transport. The port itself reads with a short fixed
// timeout; this loops until a byte arrives or the caller's window closes.
func (t *SerialTransport) ReadByte(timeout time.Duration) (byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1)

	for {
		port := t.handle()
		if port == nil {
			if time.Now().After(deadline) {
				return 0, ErrReadTimeout
			}
			time.Sleep(reopenBackoff / 10)
			continue
		}

		n, err := port.Read(buf)
		if n == 1 {
			return buf[0], nil
		}
		if err != nil && err != io.EOF {
			t.drop()
			return 0, err
		}
		if time.Now().After(deadline) {
			return 0, ErrReadTimeout
		}
	}
}

// Close implements Transport.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
