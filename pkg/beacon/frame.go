package beacon

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	frameType   byte = 0x02
	frameLength byte = 0x15

	// FrameSize is the size of an iBeacon payload without the company ID.
	FrameSize = 23
)

// Frame is the iBeacon manufacturer-specific payload.
type Frame struct {
	Identity
	// MeasuredPower is the calibrated RSSI at 1 meter, as a signed byte.
	MeasuredPower int8
}

// ParseFrame decodes an iBeacon payload. data may start either at the
// 0x02 0x15 type/length bytes or at the little-endian Apple company ID.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) >= FrameSize+2 && binary.LittleEndian.Uint16(data) == AppleCompanyID && data[2] == frameType {
		data = data[2:]
	}
	if len(data) < FrameSize || data[0] != frameType || data[1] != frameLength {
		return Frame{}, ErrNotIBeacon
	}

	u, err := uuid.FromBytes(data[2:18])
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrNotIBeacon, err)
	}

	return Frame{
		Identity: Identity{
			UUID:  u,
			Major: binary.BigEndian.Uint16(data[18:20]),
			Minor: binary.BigEndian.Uint16(data[20:22]),
		},
		MeasuredPower: int8(data[22]),
	}, nil
}

// Bytes encodes the frame as manufacturer data, without the company ID.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameSize)
	b[0] = frameType
	b[1] = frameLength
	copy(b[2:18], f.UUID[:])
	binary.BigEndian.PutUint16(b[18:20], f.Major)
	binary.BigEndian.PutUint16(b[20:22], f.Minor)
	b[22] = byte(f.MeasuredPower)
	return b
}

// NormalizePower turns a user-entered power into the negative dBm
// value a frame carries, and clamps it to the signed byte range.
func NormalizePower(p int) int8 {
	if p > 0 {
		p = -p
	}
	if p < -128 {
		p = -128
	}
	return int8(p)
}
