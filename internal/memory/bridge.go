package memory

import "sync"

// Bridge mirrors host-side scope reservations into the device-side
// tracker so that speculative work in one scope cannot starve another
// (spec.md section 4.2: "budget bridge"). A reservation made through the
// bridge debits both the host and device trackers atomically from the
// caller's perspective; releasing credits both back.
type Bridge struct {
	mu     sync.Mutex
	host   *Budget
	device *Budget
	// mirrored tracks, per scope id, how many bytes were mirrored into
	// the device tracker so Release can reverse exactly that amount even
	// if the caller's bookkeeping drifts.
	mirrored map[string]uint64
}

// NewBridge builds a bridge over the given host and device budget
// trackers.
func NewBridge(host, device *Budget) *Bridge {
	return &Bridge{host: host, device: device, mirrored: make(map[string]uint64)}
}

// ReserveMirrored reserves bytes against hostClass on the host tracker and
// the same byte count against deviceClass on the device tracker, keyed by
// scopeID so Release can find it again. If either reservation hits its
// hard limit, the other is rolled back and the error is returned.
func (br *Bridge) ReserveMirrored(scopeID string, hostClass, deviceClass Class, bytes uint64) (throttle bool, err error) {
	hostThrottle, err := br.host.Reserve(hostClass, bytes)
	if err != nil {
		return false, err
	}
	deviceThrottle, err := br.device.Reserve(deviceClass, bytes)
	if err != nil {
		br.host.Release(hostClass, bytes)
		return false, err
	}
	br.mu.Lock()
	br.mirrored[scopeID] += bytes
	br.mu.Unlock()
	return hostThrottle || deviceThrottle, nil
}

// ReleaseMirrored releases everything reserved under scopeID from both
// trackers, as the fraction hostClass/deviceClass describe.
func (br *Bridge) ReleaseMirrored(scopeID string, hostClass, deviceClass Class) {
	br.mu.Lock()
	bytes := br.mirrored[scopeID]
	delete(br.mirrored, scopeID)
	br.mu.Unlock()
	if bytes == 0 {
		return
	}
	br.host.Release(hostClass, bytes)
	br.device.Release(deviceClass, bytes)
}
