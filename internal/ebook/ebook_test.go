package ebook

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(typ, code uint16, value int32) []byte {
	buf := make([]byte, eventSize)
	off := eventSize - 8
	binary.NativeEndian.PutUint16(buf[off:], typ)
	binary.NativeEndian.PutUint16(buf[off+2:], code)
	binary.NativeEndian.PutUint32(buf[off+4:], uint32(value))
	return buf
}

func drain(ch <-chan bool) []bool {
	var out []bool
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestWatchReportsChangesOnly(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(event(evSW, swTabletMode, 1))
	stream.Write(event(0x01, 30, 1)) // a key press
	stream.Write(event(evSW, swTabletMode, 1))
	stream.Write(event(evSW, 0x00, 0)) // lid switch
	stream.Write(event(evSW, swTabletMode, 0))

	d := New("unused")
	require.NoError(t, d.watch(&stream))

	assert.Equal(t, []bool{true, false}, drain(d.Changes()))
	assert.False(t, d.Mode())
}

func TestWatchTruncatedEvent(t *testing.T) {
	d := New("unused")
	err := d.watch(bytes.NewReader(event(evSW, swTabletMode, 1)[:5]))
	assert.Error(t, err)
}

func TestRunMissingDevice(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "missing"))
	err := d.Run(context.Background())
	assert.Error(t, err)
	assert.False(t, d.Mode())

	_, ok := <-d.Changes()
	assert.False(t, ok, "changes closed after Run")
}

func TestRunUsesInitialQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event4")
	require.NoError(t, os.WriteFile(path, event(evSW, swTabletMode, 0), 0o600))

	var queried string
	d := New(path, WithQuery(func(_ context.Context, device string) bool {
		queried = device
		return true
	}))
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, path, queried)
	assert.False(t, d.Mode())
	assert.Equal(t, []bool{false}, drain(d.Changes()))
}
