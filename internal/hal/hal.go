// Package hal abstracts the probe hardware: the button's built-in LED, the
// button itself, and the 1-wire temperature sensor. Process logic depends
// only on these ports; the linux implementation and the scripted mock are
// the two adapters.
package hal

import "context"

// HAL is the hardware port constructed once at process start and passed to
// every consumer.
type HAL interface {
	// SetLED drives the indicator LED directly.
	SetLED(on bool) error

	// ButtonPressed samples the button. The input is active-low with a
	// pull-up; implementations return true while the button is held.
	ButtonPressed() (bool, error)

	// AcquireSensor locates the temperature probe on the bus. Called before
	// the first read and again after a kernel module reload.
	AcquireSensor(ctx context.Context) error

	// ReadTemperature returns the current probe temperature in Celsius.
	ReadTemperature(ctx context.Context) (float64, error)

	// Close releases any claimed hardware resources.
	Close() error
}
