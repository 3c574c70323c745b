// Package ebook detects when an XO laptop is folded into e-book (tablet)
// mode by watching the lid switch on a Linux input device.
package ebook

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultDevice is the XO switch device.
const DefaultDevice = "/dev/input/event4"

const (
	evSW         = 0x05
	swTabletMode = 0x01

	// evtest exits with the switch value plus 10 when it is set.
	evtestTabletExit = 10
)

// eventSize is sizeof(struct input_event): a timeval followed by
// type (u16), code (u16) and value (s32).
var eventSize = 2*strconv.IntSize/8 + 8

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.log = logger
		}
	}
}

// WithQuery overrides how the initial mode is read.
func WithQuery(query func(ctx context.Context, device string) bool) Option {
	return func(d *Detector) { d.query = query }
}

// Detector reports e-book mode changes.
type Detector struct {
	device  string
	mode    atomic.Bool
	changes chan bool
	query   func(ctx context.Context, device string) bool
	log     *zerolog.Logger
}

// New creates a detector for device.
func New(device string, opts ...Option) *Detector {
	nop := zerolog.Nop()
	d := &Detector{
		device:  device,
		changes: make(chan bool, 8),
		query:   QueryEvtest,
		log:     &nop,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode reports whether the laptop is in e-book mode.
func (d *Detector) Mode() bool {
	return d.mode.Load()
}

// Changes delivers each new mode. It is closed when Run returns.
func (d *Detector) Changes() <-chan bool {
	return d.changes
}

// Run reads the device until ctx is done. A device that cannot be opened
// leaves the mode off and returns the error.
func (d *Detector) Run(ctx context.Context) error {
	defer close(d.changes)

	f, err := os.Open(d.device)
	if err != nil {
		d.mode.Store(false)
		return fmt.Errorf("open %s: %w", d.device, err)
	}
	d.mode.Store(d.query(ctx, d.device))

	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer stop()
	defer f.Close()

	err = d.watch(f)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// watch consumes input events from r, publishing tablet mode switches.
func (d *Detector) watch(r io.Reader) error {
	buf := make([]byte, eventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input event: %w", err)
		}
		typ, code, value := decodeEvent(buf)
		if typ != evSW || code != swTabletMode {
			continue
		}
		mode := value == 1
		if d.mode.Swap(mode) == mode {
			continue
		}
		d.log.Debug().Bool("ebook", mode).Msg("ebook mode changed")
		select {
		case d.changes <- mode:
		default:
			d.log.Warn().Msg("ebook mode change dropped, no reader")
		}
	}
}

func decodeEvent(buf []byte) (typ, code uint16, value int32) {
	off := len(buf) - 8
	typ = binary.NativeEndian.Uint16(buf[off:])
	code = binary.NativeEndian.Uint16(buf[off+2:])
	value = int32(binary.NativeEndian.Uint32(buf[off+4:]))
	return typ, code, value
}

// QueryEvtest asks evtest for the current switch state. Any failure reads
// as normal mode.
func QueryEvtest(ctx context.Context, device string) bool {
	err := exec.CommandContext(ctx, "evtest", "--query", device, "EV_SW", "SW_TABLET_MODE").Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == evtestTabletExit
	}
	return false
}
