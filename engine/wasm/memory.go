package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/caffeineduck/goviz/native"
)

var errOutOfMemory = errors.New("guest malloc returned null")

func (m *Module) outOfRange(ptr, size uint32) error {
	return fmt.Errorf(
		"failed to access wasm memory: (ptr, size) = (%d, %d) and memory size is %d",
		ptr, size, m.guest.Memory().Size(),
	)
}

// writeString copies s and a terminating NUL to p.
func (m *Module) writeString(p native.Pointer, s string) error {
	data := make([]byte, len(s)+1)
	copy(data, s)
	if !m.guest.Memory().Write(uint32(p), data) {
		return m.outOfRange(uint32(p), uint32(len(data)))
	}
	return nil
}

// readString reads the NUL-terminated string at p.
func (m *Module) readString(p native.Pointer) (string, error) {
	mem := m.guest.Memory()
	size := mem.Size()
	if uint32(p) >= size {
		return "", m.outOfRange(uint32(p), 1)
	}

	data, _ := mem.Read(uint32(p), size-uint32(p))
	n := bytes.IndexByte(data, 0)
	if n < 0 {
		return "", fmt.Errorf("unterminated string at %d", p)
	}
	return string(data[:n]), nil
}

// withStrings copies each string into guest memory, runs fn with their
// addresses and frees them again. The copies only live for the duration
// of fn.
func (m *Module) withStrings(ctx context.Context, ss []string, fn func(args []uint64) error) (err error) {
	args := make([]uint64, 0, len(ss))
	defer func() {
		for _, arg := range args {
			if freeErr := m.free(ctx, native.Pointer(api.DecodeU32(arg))); freeErr != nil && err == nil {
				err = fmt.Errorf("free argument: %w", freeErr)
			}
		}
	}()

	for _, s := range ss {
		p, err := m.malloc(ctx, uint32(len(s)+1))
		if err != nil {
			return err
		}
		if p == native.Null {
			return errOutOfMemory
		}
		args = append(args, api.EncodeU32(uint32(p)))
		if err := m.writeString(p, s); err != nil {
			return err
		}
	}

	return fn(args)
}
