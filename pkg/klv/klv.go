// Package klv implements the key-length-value framing used on the screener
// wire: a fixed-size universal label key, a BER encoded length and the value
// bytes (SMPTE ST 336).
package klv

import (
	"errors"
	"fmt"
	"io"
)

// KeyLength is the size of a universal label key.
const KeyLength = 16

// maxLengthBytes is the largest long-form length-of-length accepted.
const maxLengthBytes = 8

var (
	// ErrMalformed reports an envelope shorter than it declares.
	ErrMalformed = errors.New("klv: malformed envelope")
	// ErrTrailingData reports bytes left over after the declared value.
	ErrTrailingData = errors.New("klv: trailing data after value")
	// ErrTooLarge reports a value larger than the reader allows.
	ErrTooLarge = errors.New("klv: value too large")
)

// Encode builds an envelope from key and value.
func Encode(key []byte, value []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("klv: key required")
	}
	length := EncodeLength(uint64(len(value)))
	out := make([]byte, 0, len(key)+len(length)+len(value))
	out = append(out, key...)
	out = append(out, length...)
	out = append(out, value...)
	return out, nil
}

// Decode splits msg into its key and value. The message must contain exactly
// headerLen key bytes, the length field and the declared value.
func Decode(msg []byte, headerLen int) ([]byte, []byte, error) {
	if headerLen <= 0 {
		return nil, nil, errors.New("klv: header length must be positive")
	}
	if len(msg) < headerLen+1 {
		return nil, nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(msg), headerLen+1)
	}
	key := msg[:headerLen]
	length, n, err := DecodeLength(msg[headerLen:])
	if err != nil {
		return nil, nil, err
	}
	start := headerLen + n
	available := uint64(len(msg) - start)
	if length > available {
		return nil, nil, fmt.Errorf("%w: value declares %d bytes, %d available", ErrMalformed, length, available)
	}
	end := start + int(length)
	if end != len(msg) {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(msg)-end)
	}
	return key, msg[start:end], nil
}

// EncodeLength returns the BER encoding of length. Values below 128 use the
// short form, larger ones a length-of-length byte followed by the big-endian
// magnitude.
func EncodeLength(length uint64) []byte {
	if length < 0x80 {
		return []byte{byte(length)}
	}
	var magnitude [maxLengthBytes]byte
	n := 0
	for v := length; v > 0; v >>= 8 {
		n++
	}
	for i := 0; i < n; i++ {
		magnitude[maxLengthBytes-1-i] = byte(length >> (8 * i))
	}
	out := make([]byte, 0, n+1)
	out = append(out, 0x80|byte(n))
	return append(out, magnitude[maxLengthBytes-n:]...)
}

// DecodeLength reads a BER length from the front of b and returns the value
// and the number of bytes consumed.
func DecodeLength(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: missing length", ErrMalformed)
	}
	first := b[0]
	if first&0x80 == 0 {
		return uint64(first), 1, nil
	}
	n := int(first & 0x7f)
	if n == 0 || n > maxLengthBytes {
		return 0, 0, fmt.Errorf("%w: unsupported length-of-length %d", ErrMalformed, n)
	}
	if len(b) < n+1 {
		return 0, 0, fmt.Errorf("%w: length field truncated", ErrMalformed)
	}
	var length uint64
	for _, c := range b[1 : n+1] {
		length = length<<8 | uint64(c)
	}
	return length, n + 1, nil
}

// ReadFrame reads a single envelope from r. A maxValue of zero disables the
// size check.
func ReadFrame(r io.Reader, headerLen int, maxValue uint64) ([]byte, []byte, error) {
	key := make([]byte, headerLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, err
	}

	var lengthField [1 + maxLengthBytes]byte
	if _, err := io.ReadFull(r, lengthField[:1]); err != nil {
		return nil, nil, truncated(err)
	}
	fieldLen := 1
	if lengthField[0]&0x80 != 0 {
		n := int(lengthField[0] & 0x7f)
		if n == 0 || n > maxLengthBytes {
			return nil, nil, fmt.Errorf("%w: unsupported length-of-length %d", ErrMalformed, n)
		}
		if _, err := io.ReadFull(r, lengthField[1:n+1]); err != nil {
			return nil, nil, truncated(err)
		}
		fieldLen += n
	}
	length, _, err := DecodeLength(lengthField[:fieldLen])
	if err != nil {
		return nil, nil, err
	}
	if maxValue > 0 && length > maxValue {
		return nil, nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, length, maxValue)
	}

	value := make([]byte, length)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, nil, truncated(err)
	}
	return key, value, nil
}

// WriteFrame encodes and writes a single envelope to w.
func WriteFrame(w io.Writer, key []byte, value []byte) error {
	msg, err := Encode(key, value)
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	return err
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrMalformed, io.ErrUnexpectedEOF)
	}
	return err
}
