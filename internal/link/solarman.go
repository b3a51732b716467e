package link

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Solarman V5 framing: every Modbus RTU request travels inside a vendor
// envelope addressed to the Wi-Fi logger stick by its serial number.
//
//	A5 | len(2 LE) | ctrl(2 LE) | seq(2) | logger serial(4 LE) | payload | checksum | 15
//
// The request payload is a 15-byte preamble (frame type 02, zeroed sensor
// type and uptime counters) followed by the RTU frame. Responses carry a
// 14-byte preamble before the RTU frame.
const (
	v5Start byte = 0xA5
	v5End   byte = 0x15

	v5CtrlRequest  uint16 = 0x4510
	v5CtrlResponse uint16 = 0x1510

	v5FrameTypeData byte = 0x02

	v5HeaderLen          = 11
	v5RequestPreambleLen = 15
	v5ResponsePreambleLL = 14
)

// SolarmanTransport speaks Modbus RTU wrapped in Solarman V5 frames over one
// TCP connection to the logger stick.
type SolarmanTransport struct {
	addr    string
	serial  uint32
	slaveID byte
	timeout time.Duration
	seq     byte
	conn    net.Conn
}

// NewSolarman creates a transport for the logger at host:port. The serial is
// the logger's serial number, not the inverter's.
func NewSolarman(host string, port int, serial uint32, timeout time.Duration) *SolarmanTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SolarmanTransport{
		addr:    fmt.Sprintf("%s:%d", host, port),
		serial:  serial,
		slaveID: 1,
		timeout: timeout,
	}
}

func (t *SolarmanTransport) Connect() error {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	conn, err := net.DialTimeout("tcp", t.addr, t.timeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", t.addr, err)
	}
	t.conn = conn
	return nil
}

func (t *SolarmanTransport) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *SolarmanTransport) Connected() bool {
	return t.conn != nil
}

// ReadRegister issues one read-holding-registers request for a single
// register and blocks until the response arrives or the timeout elapses.
func (t *SolarmanTransport) ReadRegister(addr uint16) (uint16, error) {
	if t.conn == nil {
		return 0, fmt.Errorf("not connected")
	}

	t.seq++
	frame := t.buildFrame(t.seq, buildRTURead(t.slaveID, addr, 1))

	deadline := time.Now().Add(t.timeout)
	if err := t.conn.SetDeadline(deadline); err != nil {
		return 0, err
	}
	if _, err := t.conn.Write(frame); err != nil {
		return 0, fmt.Errorf("write register %d: %w", addr, err)
	}

	rtu, err := t.readFrame(t.seq)
	if err != nil {
		return 0, fmt.Errorf("read register %d: %w", addr, err)
	}
	return parseRTURead(rtu)
}

func (t *SolarmanTransport) buildFrame(seq byte, rtu []byte) []byte {
	payload := make([]byte, v5RequestPreambleLen+len(rtu))
	payload[0] = v5FrameTypeData
	copy(payload[v5RequestPreambleLen:], rtu)

	frame := make([]byte, 0, v5HeaderLen+len(payload)+2)
	frame = append(frame, v5Start)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = binary.LittleEndian.AppendUint16(frame, v5CtrlRequest)
	frame = append(frame, seq, 0x00)
	frame = binary.LittleEndian.AppendUint32(frame, t.serial)
	frame = append(frame, payload...)
	frame = append(frame, v5Checksum(frame), v5End)
	return frame
}

func (t *SolarmanTransport) readFrame(seq byte) ([]byte, error) {
	header := make([]byte, v5HeaderLen)
	if _, err := io.ReadFull(t.conn, header); err != nil {
		return nil, err
	}
	if header[0] != v5Start {
		return nil, fmt.Errorf("bad frame start 0x%02x", header[0])
	}
	payloadLen := int(binary.LittleEndian.Uint16(header[1:3]))
	ctrl := binary.LittleEndian.Uint16(header[3:5])
	if ctrl != v5CtrlResponse {
		return nil, fmt.Errorf("unexpected control code 0x%04x", ctrl)
	}
	if header[5] != seq {
		return nil, fmt.Errorf("sequence mismatch: sent %d got %d", seq, header[5])
	}

	rest := make([]byte, payloadLen+2)
	if _, err := io.ReadFull(t.conn, rest); err != nil {
		return nil, err
	}
	if rest[len(rest)-1] != v5End {
		return nil, fmt.Errorf("bad frame end 0x%02x", rest[len(rest)-1])
	}

	full := append(header, rest...)
	if sum := v5Checksum(full[:len(full)-2]); sum != rest[len(rest)-2] {
		return nil, fmt.Errorf("frame checksum mismatch")
	}
	if payloadLen < v5ResponsePreambleLL+5 {
		return nil, fmt.Errorf("payload too short: %d bytes", payloadLen)
	}
	return rest[v5ResponsePreambleLL : payloadLen], nil
}

// v5Checksum sums every byte after the start marker.
func v5Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[1:] {
		sum += b
	}
	return sum
}

func buildRTURead(slave byte, addr, count uint16) []byte {
	rtu := make([]byte, 0, 8)
	rtu = append(rtu, slave, 0x03)
	rtu = binary.BigEndian.AppendUint16(rtu, addr)
	rtu = binary.BigEndian.AppendUint16(rtu, count)
	return binary.LittleEndian.AppendUint16(rtu, crc16(rtu))
}

func parseRTURead(rtu []byte) (uint16, error) {
	if len(rtu) < 5 {
		return 0, fmt.Errorf("rtu frame too short: %d bytes", len(rtu))
	}
	body := rtu[:len(rtu)-2]
	if crc16(body) != binary.LittleEndian.Uint16(rtu[len(rtu)-2:]) {
		return 0, fmt.Errorf("rtu crc mismatch")
	}
	if rtu[1]&0x80 != 0 {
		return 0, fmt.Errorf("modbus exception 0x%02x", rtu[2])
	}
	if rtu[1] != 0x03 {
		return 0, fmt.Errorf("unexpected function code 0x%02x", rtu[1])
	}
	if rtu[2] < 2 || len(body) < 3+2 {
		return 0, fmt.Errorf("short register data")
	}
	return binary.BigEndian.Uint16(rtu[3:5]), nil
}

// crc16 is the Modbus RTU CRC (poly 0xA001, init 0xFFFF).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
