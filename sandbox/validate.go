package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// BytecodeSignature is the first byte of every precompiled Lua chunk ("\x1bLua").
const BytecodeSignature = 0x1b

// ValidateScript checks that path holds Lua source rather than precompiled
// bytecode. Only the first byte is inspected.
func ValidateScript(path string) error {
	first, err := readFirstByte(path)
	if err != nil {
		return &Error{Kind: KindInvalidScript, Stage: StageUnloaded, Path: path, Err: err}
	}

	switch first {
	case BytecodeSignature:
		return &Error{Kind: KindSecurityRejection, Stage: StageUnloaded, Path: path, Err: ErrBytecode}
	case 0:
		return &Error{Kind: KindInvalidScript, Stage: StageUnloaded, Path: path, Err: ErrInvalidScript}
	default:
		return nil
	}
}

// readFirstByte returns the first byte of the file, or -1 for an empty file.
func readFirstByte(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}

	var buf [1]byte
	n, readErr := f.Read(buf[:])
	if closeErr := f.Close(); closeErr != nil {
		return 0, fmt.Errorf("close: %w", closeErr)
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		return 0, fmt.Errorf("read: %w", readErr)
	}
	if n == 0 {
		return -1, nil
	}
	return int(buf[0]), nil
}
