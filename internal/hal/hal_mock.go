package hal

import (
	"context"
	"sync"

	"github.com/coldsentry-io/coldsentry/internal/faults"
)

// Mock is a scripted HAL for tests and for development off-device. It
// records LED transitions and replays scripted button samples and sensor
// readings.
type Mock struct {
	mu sync.Mutex

	// LEDStates records every SetLED call in order.
	LEDStates []bool

	// buttonScript is consumed one sample per ButtonPressed call; when
	// exhausted, buttonDefault is returned.
	buttonScript  []bool
	buttonDefault bool

	// sensorScript is consumed one entry per ReadTemperature call; when
	// exhausted, reads fail.
	sensorScript []SensorSample

	// AcquireErr, when set, fails AcquireSensor.
	AcquireErr error

	// AcquireCalls counts AcquireSensor invocations.
	AcquireCalls int

	closed bool
}

// SensorSample is one scripted sensor read.
type SensorSample struct {
	Temp float64
	Err  error
}

var _ HAL = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{}
}

// ScriptButton appends button samples to be returned in order.
func (m *Mock) ScriptButton(samples ...bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttonScript = append(m.buttonScript, samples...)
}

// HoldButton sets the value returned once the script is exhausted.
func (m *Mock) HoldButton(pressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttonDefault = pressed
}

// ScriptSensor appends sensor reads to be returned in order.
func (m *Mock) ScriptSensor(samples ...SensorSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensorScript = append(m.sensorScript, samples...)
}

// LED returns the most recent LED state.
func (m *Mock) LED() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.LEDStates) == 0 {
		return false
	}
	return m.LEDStates[len(m.LEDStates)-1]
}

func (m *Mock) SetLED(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LEDStates = append(m.LEDStates, on)
	return nil
}

func (m *Mock) ButtonPressed() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buttonScript) > 0 {
		v := m.buttonScript[0]
		m.buttonScript = m.buttonScript[1:]
		return v, nil
	}
	return m.buttonDefault, nil
}

func (m *Mock) AcquireSensor(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AcquireCalls++
	return m.AcquireErr
}

func (m *Mock) ReadTemperature(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sensorScript) == 0 {
		return 0, faults.ErrSensorUnavailable
	}
	s := m.sensorScript[0]
	m.sensorScript = m.sensorScript[1:]
	return s.Temp, s.Err
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
