package progress

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// frameHeader is the group id (int32) followed by the append flag (1 byte).
const frameHeader = 5

// Frame is a progress message relayed from a sub-master to the supervisor.
type Frame struct {
	Group  int
	Append bool
	Text   string
}

// EncodeFrame lays a frame out as its size (uint32, big endian) followed by
// the group id, the append flag and the UTF-8 text.
func EncodeFrame(f Frame) []byte {
	size := frameHeader + len(f.Text)
	buf := make([]byte, 4+size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(size))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(f.Group)))
	if f.Append {
		buf[8] = 1
	}
	copy(buf[9:], f.Text)
	return buf
}

func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < 4+frameHeader {
		return Frame{}, errors.Errorf("progress frame too short: %d bytes", len(buf))
	}
	size := int(binary.BigEndian.Uint32(buf[0:4]))
	if size != len(buf)-4 {
		return Frame{}, errors.Errorf("progress frame declares %d bytes, carries %d", size, len(buf)-4)
	}
	text := buf[9:]
	if !utf8.Valid(text) {
		return Frame{}, errors.New("progress frame text is not UTF-8")
	}
	return Frame{
		Group:  int(int32(binary.BigEndian.Uint32(buf[4:8]))),
		Append: buf[8] == 1,
		Text:   string(text),
	}, nil
}
