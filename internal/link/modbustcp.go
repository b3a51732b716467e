package link

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

// ModbusTCPTransport reads registers over plain Modbus TCP, for inverters
// reachable through a Modbus gateway instead of a Solarman logger stick.
type ModbusTCPTransport struct {
	url     string
	slaveID uint8
	timeout time.Duration
	client  *modbus.ModbusClient
}

func NewModbusTCP(host string, port int, slaveID uint8, timeout time.Duration) *ModbusTCPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ModbusTCPTransport{
		url:     fmt.Sprintf("tcp://%s:%d", host, port),
		slaveID: slaveID,
		timeout: timeout,
	}
}

func (t *ModbusTCPTransport) Connect() error {
	if t.client != nil {
		t.client.Close()
		t.client = nil
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     t.url,
		Timeout: t.timeout,
	})
	if err != nil {
		return fmt.Errorf("create modbus client: %w", err)
	}
	if err := client.Open(); err != nil {
		return fmt.Errorf("connect %s: %w", t.url, err)
	}
	client.SetUnitId(t.slaveID)
	t.client = client
	return nil
}

func (t *ModbusTCPTransport) Disconnect() error {
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func (t *ModbusTCPTransport) Connected() bool {
	return t.client != nil
}

func (t *ModbusTCPTransport) ReadRegister(addr uint16) (uint16, error) {
	if t.client == nil {
		return 0, fmt.Errorf("not connected")
	}
	v, err := t.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, fmt.Errorf("read register %d: %w", addr, err)
	}
	return v, nil
}
