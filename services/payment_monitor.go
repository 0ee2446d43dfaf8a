package services

import (
	"sync"
	"time"
)

// PaymentMetrics menyimpan metrik webhook pembayaran
type PaymentMetrics struct {
	Received    int64      `json:"received"`
	Applied     int64      `json:"applied"`
	Duplicates  int64      `json:"duplicates"`
	Conflicts   int64      `json:"conflicts"`
	Unknown     int64      `json:"unknown"`
	Rejected    int64      `json:"rejected"`
	Failed      int64      `json:"failed"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
}

// PaymentMonitor counts webhook outcomes for the admin dashboard.
type PaymentMonitor struct {
	metrics PaymentMetrics
	mutex   sync.Mutex
}

func NewPaymentMonitor() *PaymentMonitor {
	return &PaymentMonitor{}
}

func (pm *PaymentMonitor) record(update func(m *PaymentMetrics)) {
	if pm == nil {
		return
	}
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	update(&pm.metrics)
	now := time.Now()
	pm.metrics.LastEventAt = &now
}

func (pm *PaymentMonitor) received()  { pm.record(func(m *PaymentMetrics) { m.Received++ }) }
func (pm *PaymentMonitor) applied()   { pm.record(func(m *PaymentMetrics) { m.Applied++ }) }
func (pm *PaymentMonitor) duplicate() { pm.record(func(m *PaymentMetrics) { m.Duplicates++ }) }
func (pm *PaymentMonitor) conflict()  { pm.record(func(m *PaymentMetrics) { m.Conflicts++ }) }
func (pm *PaymentMonitor) unknown()   { pm.record(func(m *PaymentMetrics) { m.Unknown++ }) }
func (pm *PaymentMonitor) rejected()  { pm.record(func(m *PaymentMetrics) { m.Rejected++ }) }
func (pm *PaymentMonitor) failed()    { pm.record(func(m *PaymentMetrics) { m.Failed++ }) }

// GetMetrics returns a copy of the current counters.
func (pm *PaymentMonitor) GetMetrics() PaymentMetrics {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	out := pm.metrics
	if pm.metrics.LastEventAt != nil {
		t := *pm.metrics.LastEventAt
		out.LastEventAt = &t
	}
	return out
}
