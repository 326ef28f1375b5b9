// Package device implements BLELink using tinygo.org/x/bluetooth: a GATT characteristic
// used as the link. Inbound lines arrive as notifications, outbound data is written
// without response in chunks no larger than the configured ATT payload.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
)

var (
	adapter       = bluetooth.DefaultAdapter
	enableAdapter sync.Once
	enableErr     error
)

func bleAdapter() (*bluetooth.Adapter, error) {
	enableAdapter.Do(func() {
		enableErr = adapter.Enable()
	})
	if enableErr != nil {
		return nil, fault.Wrap(fmt.Errorf("could not enable the BLE stack: %w", enableErr), fault.Connection, "ble enable")
	}
	return adapter, nil
}

// BLEPeripherals scans for advertising peripherals until ctx is done or timeout elapses.
func BLEPeripherals(ctx context.Context, timeout time.Duration) ([]Candidate, error) {
	a, err := bleAdapter()
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		out  []Candidate
	)
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-scanCtx.Done()
		_ = a.StopScan()
	}()

	err = a.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true
		name := result.LocalName()
		if name == "" {
			name = "(unnamed)"
		}
		out = append(out, Candidate{
			Label:   fmt.Sprintf("%s: %s (rssi %d)", name, addr, result.RSSI),
			Address: addr,
			ref:     result.Address,
		})
	})
	if err != nil {
		return nil, fault.Wrap(fmt.Errorf("could not start a scan: %w", err), fault.Connection, "ble scan")
	}
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

// BLELink implements Link over a GATT service: lines are written to one characteristic
// and arrive as notifications on another (or the same one).
type BLELink struct {
	device bluetooth.Device
	write  bluetooth.DeviceCharacteristic
	notify bluetooth.DeviceCharacteristic
	name   string
	chunk  int
	q      *lineQueue

	closeOnce sync.Once
	closeErr  error
}

// gattPlan is the parsed service and characteristic layout of a BLE link.
type gattPlan struct {
	service bluetooth.UUID
	write   bluetooth.UUID
	notify  bluetooth.UUID
}

func newGATTPlan(cfg model.BLEConfig) (gattPlan, error) {
	var p gattPlan
	var err error
	if p.service, err = bluetooth.ParseUUID(cfg.ServiceUUID); err != nil {
		return p, fault.Wrap(fmt.Errorf("service uuid %q: %w", cfg.ServiceUUID, err), fault.Config, "ble connect")
	}
	if p.write, err = bluetooth.ParseUUID(cfg.CharacteristicUUID); err != nil {
		return p, fault.Wrap(fmt.Errorf("characteristic uuid %q: %w", cfg.CharacteristicUUID, err), fault.Config, "ble connect")
	}
	p.notify = p.write
	if cfg.NotifyUUID != "" {
		if p.notify, err = bluetooth.ParseUUID(cfg.NotifyUUID); err != nil {
			return p, fault.Wrap(fmt.Errorf("notify uuid %q: %w", cfg.NotifyUUID, err), fault.Config, "ble connect")
		}
	}
	return p, nil
}

// single reports whether one characteristic carries both directions.
func (p gattPlan) single() bool { return p.write == p.notify }

// characteristics lists the UUIDs to discover.
func (p gattPlan) characteristics() []bluetooth.UUID {
	if p.single() {
		return []bluetooth.UUID{p.write}
	}
	return []bluetooth.UUID{p.write, p.notify}
}

// pick finds the characteristic with uuid among found.
func pick(found []bluetooth.DeviceCharacteristic, uuid bluetooth.UUID) (bluetooth.DeviceCharacteristic, bool) {
	for _, c := range found {
		if c.UUID() == uuid {
			return c, true
		}
	}
	return bluetooth.DeviceCharacteristic{}, false
}

// NewBLELink connects to the peripheral behind c, subscribes to the notify characteristic
// and writes to the write characteristic.
func NewBLELink(c Candidate, cfg model.BLEConfig) (*BLELink, error) {
	addr, ok := c.ref.(bluetooth.Address)
	if !ok {
		return nil, fault.New(fault.Connection, "ble connect: candidate was not discovered by a scan")
	}
	plan, err := newGATTPlan(cfg)
	if err != nil {
		return nil, err
	}
	a, err := bleAdapter()
	if err != nil {
		return nil, err
	}

	device, err := a.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fault.Wrap(fmt.Errorf("failed to connect to %s: %w", c.Address, err), fault.Connection, "ble connect")
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{plan.service})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return nil, fault.Wrap(fmt.Errorf("service %s not found: %w", cfg.ServiceUUID, errOrMissing(err)), fault.Connection, "ble discover")
	}
	chars, err := services[0].DiscoverCharacteristics(plan.characteristics())
	if err != nil {
		_ = device.Disconnect()
		return nil, fault.Wrap(fmt.Errorf("characteristics: %w", err), fault.Connection, "ble discover")
	}
	writeChar, okWrite := pick(chars, plan.write)
	notifyChar, okNotify := pick(chars, plan.notify)
	if !okWrite || !okNotify {
		_ = device.Disconnect()
		return nil, fault.Wrap(fmt.Errorf("characteristic %s or %s not found: %w", plan.write, plan.notify, errOrMissing(nil)),
			fault.Connection, "ble discover")
	}

	chunk := cfg.WriteChunk
	if chunk <= 0 {
		chunk = 20
	}
	l := &BLELink{device: device, write: writeChar, notify: notifyChar, name: c.Label, chunk: chunk, q: newLineQueue()}
	if err := l.notify.EnableNotifications(func(value []byte) {
		l.q.feedFrame(value)
	}); err != nil {
		_ = device.Disconnect()
		return nil, fault.Wrap(fmt.Errorf("enable notifications: %w", err), fault.Connection, "ble subscribe")
	}
	return l, nil
}

func errOrMissing(err error) error {
	if err != nil {
		return err
	}
	return errors.New("not advertised by peripheral")
}

// Name describes the endpoint for the connection banner.
func (l *BLELink) Name() string { return l.name }

// ReadLine returns the next notified line, waiting at most timeout.
func (l *BLELink) ReadLine(timeout time.Duration) ([]byte, error) {
	return l.q.next(timeout)
}

// WriteLine writes s + '\n' to the write characteristic.
func (l *BLELink) WriteLine(s string) error {
	_, err := l.Write(append([]byte(s), '\n'))
	return err
}

// Write sends p as a sequence of write-without-response commands.
func (l *BLELink) Write(p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		end := sent + l.chunk
		if end > len(p) {
			end = len(p)
		}
		if _, err := l.write.WriteWithoutResponse(p[sent:end]); err != nil {
			return sent, fault.Wrap(err, fault.IO, "ble write")
		}
		sent = end
	}
	return sent, nil
}

// Flush is a no-op: each write command is handed to the controller synchronously.
func (l *BLELink) Flush() error { return nil }

// ResetInputBuffer drops every queued notification.
func (l *BLELink) ResetInputBuffer() error {
	l.q.reset()
	return nil
}

// ResetOutputBuffer is a no-op: nothing is queued on the host side.
func (l *BLELink) ResetOutputBuffer() error { return nil }

// Close unsubscribes and disconnects.
func (l *BLELink) Close() error {
	l.closeOnce.Do(func() {
		_ = l.notify.EnableNotifications(nil)
		l.closeErr = l.device.Disconnect()
		l.q.close()
	})
	return l.closeErr
}
