package bus

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/telemetry"
)

type rxState int

const (
	waitingOnStartByte rxState = iota
	waitingOnLengthByte
	waitingToFinish
)

// Receiver reassembles bus packets from the raw byte stream. It is a three
// state machine: hunt for a recognized start byte, accumulate the header up
// to the length field, then accumulate to the announced total and validate.
// Any read timeout, invalid start byte, or checksum failure discards the
// buffer and restarts the hunt; no partial packet survives a gap.
type Receiver struct {
	transport Transport
	pipe      *Pipeline
	logger    *logrus.Entry

	state  rxState
	buf    []byte
	target int
}

func newReceiver(transport Transport, pipe *Pipeline, logger *logrus.Entry) *Receiver {
	return &Receiver{
		transport: transport,
		pipe:      pipe,
		logger:    logger.WithField("stage", "receiver"),
	}
}

func (r *Receiver) reset() {
	r.state = waitingOnStartByte
	r.buf = r.buf[:0]
	r.target = 0
}

func (r *Receiver) run() {
	r.reset()

	for {
		select {
		case <-r.pipe.shutdownCh:
			return
		default:
		}

		b, err := r.transport.ReadByte(r.pipe.conf.ReadTimeout)
		if err == ErrReadTimeout {
			if r.state != waitingOnStartByte {
				r.logger.Debug("byte stream gap, discarding partial packet")
				r.reset()
			}
			continue
		}
		if err != nil {
			// Transport fault, possibly a lost connection. Idle
			// and keep retrying; the transport reconnects behind
			// its own boundary.
			r.reset()
			r.logger.WithError(err).Error("transport read failed")
			time.Sleep(r.pipe.conf.ReadTimeout)
			continue
		}

		r.feed(b)
	}
}

func (r *Receiver) feed(b byte) {
	switch r.state {
	case waitingOnStartByte:
		if b != StartUnicast && b != StartMulticast {
			return
		}
		r.buf = append(r.buf, b)
		r.state = waitingOnLengthByte

	case waitingOnLengthByte:
		r.buf = append(r.buf, b)
		if len(r.buf) < headerPrefix {
			return
		}

		// The length field counts every numeric entry including
		// itself; only the checksum byte is outside it.
		length := int(r.buf[headerPrefix-1])
		target := length + 1
		if target <= headerPrefix || target > headerPrefix+MaxPayload+1 {
			r.logger.WithField("length", length).Debug("implausible length field, resetting")
			r.reset()
			return
		}

		r.target = target
		r.state = waitingToFinish

	case waitingToFinish:
		r.buf = append(r.buf, b)
		if len(r.buf) < r.target {
			return
		}
		r.finish()
	}
}

// finish validates and dispatches a complete buffer, then resets.
func (r *Receiver) finish() {
	defer r.reset()

	if err := HeaderTemplate.ValidateChecksum(r.buf); err != nil {
		telemetry.ChecksumErrorsTotal.Inc()
		r.logger.WithError(err).Warn("discarding packet")
		return
	}

	in, err := DecodeBusPacket(r.buf)
	if err != nil {
		r.logger.WithError(err).Warn("discarding undecodable packet")
		return
	}

	if err := r.pipe.Deliver(in); err != nil {
		return
	}

	r.logger.WithFields(logrus.Fields{
		"address": in.Addr,
		"port":    in.Port,
		"bytes":   len(in.Payload),
	}).Debug("packet received")
}
