package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var errRecordCorrupt = errors.New("record corrupt")

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return errors.New("field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", errRecordCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errRecordCorrupt
	}
	return string(b), nil
}

func readVersion(r *bytes.Reader, want byte) error {
	v, err := r.ReadByte()
	if err != nil || v != want {
		return errRecordCorrupt
	}
	return nil
}
