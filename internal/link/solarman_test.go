package link

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestCRC16KnownFrame(t *testing.T) {
	// Reference frame: read 1 holding register at 0 from slave 1.
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	if got := crc16(frame); got != 0x0A84 {
		t.Errorf("crc16 = 0x%04X, want 0x0A84", got)
	}
}

func TestBuildRTURead(t *testing.T) {
	got := buildRTURead(1, 0, 1)
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("buildRTURead = % X, want % X", got, want)
	}
}

func rtuResponse(value uint16) []byte {
	rtu := []byte{0x01, 0x03, 0x02}
	rtu = binary.BigEndian.AppendUint16(rtu, value)
	return binary.LittleEndian.AppendUint16(rtu, crc16(rtu))
}

func TestParseRTURead(t *testing.T) {
	got, err := parseRTURead(rtuResponse(0x1234))
	if err != nil {
		t.Fatalf("parseRTURead: %v", err)
	}
	if got != 0x1234 {
		t.Errorf("value = 0x%04X, want 0x1234", got)
	}
}

func TestParseRTUReadRejectsBadCRC(t *testing.T) {
	rtu := rtuResponse(0x1234)
	rtu[3] ^= 0xFF
	if _, err := parseRTURead(rtu); err == nil {
		t.Error("expected crc error")
	}
}

func TestParseRTUReadException(t *testing.T) {
	rtu := []byte{0x01, 0x83, 0x02}
	rtu = binary.LittleEndian.AppendUint16(rtu, crc16(rtu))
	if _, err := parseRTURead(rtu); err == nil {
		t.Error("expected modbus exception error")
	}
}

func TestBuildFrameLayout(t *testing.T) {
	tr := NewSolarman("localhost", 8899, 2712345678, 0)
	rtu := buildRTURead(1, 586, 1)
	frame := tr.buildFrame(7, rtu)

	if frame[0] != v5Start {
		t.Errorf("start byte = 0x%02X", frame[0])
	}
	if frame[len(frame)-1] != v5End {
		t.Errorf("end byte = 0x%02X", frame[len(frame)-1])
	}

	payloadLen := int(binary.LittleEndian.Uint16(frame[1:3]))
	if payloadLen != v5RequestPreambleLen+len(rtu) {
		t.Errorf("payload length = %d, want %d", payloadLen, v5RequestPreambleLen+len(rtu))
	}
	if ctrl := binary.LittleEndian.Uint16(frame[3:5]); ctrl != v5CtrlRequest {
		t.Errorf("control = 0x%04X, want 0x%04X", ctrl, v5CtrlRequest)
	}
	if frame[5] != 7 {
		t.Errorf("sequence = %d, want 7", frame[5])
	}
	if serial := binary.LittleEndian.Uint32(frame[7:11]); serial != 2712345678 {
		t.Errorf("serial = %d, want 2712345678", serial)
	}
	if !bytes.Equal(frame[v5HeaderLen+v5RequestPreambleLen:len(frame)-2], rtu) {
		t.Error("rtu frame not at expected offset")
	}
	if sum := v5Checksum(frame[:len(frame)-2]); sum != frame[len(frame)-2] {
		t.Errorf("checksum = 0x%02X, want 0x%02X", frame[len(frame)-2], sum)
	}
}
