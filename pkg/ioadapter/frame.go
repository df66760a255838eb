package ioadapter

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const maxFrameLen = 1 << 20

// writeFrame writes payload as a 4-byte big-endian length prefix followed by
// the raw bytes.
func writeFrame(conn net.Conn, payload []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

// readFrame blocks until one length-prefixed payload has been read from
// conn.
func readFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxFrameLen {
		return nil, fmt.Errorf("ioadapter: frame length %d exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
