// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package muxer

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the size of the big-endian length prefix
	FrameHeaderSize = 4

	// MaxFrameSize bounds the payload of a single frame
	MaxFrameSize = 16 * 1024 * 1024
)

// WriteFrame writes the payload prefixed with its length
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload))) // #nosec G115
	copy(buf[FrameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads a single length-prefixed frame and returns its payload
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	// We use ReadFull because it guarantees to read the expected number of bytes or
	// return an error
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
