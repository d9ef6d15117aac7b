package app

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

type testOptions struct {
	SensorName string
}

func (o *testOptions) Validate() []error { return nil }

func (o *testOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.SensorName, "sensor-name", o.SensorName, "Sensor display name.")
}

func execute(t *testing.T, a *App, args ...string) {
	t.Helper()
	a.Command().SetArgs(args)
	require.NoError(t, a.Command().Execute())
}

func TestEnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("COLDSENTRY_SENSOR_NAME", "from-env")

	opts := &testOptions{SensorName: "default"}
	ran := false
	a := NewApp("test-app", "test", WithOptions(opts), WithRunFunc(func() error {
		ran = true
		return nil
	}))

	execute(t, a)
	assert.True(t, ran)
	assert.Equal(t, "from-env", opts.SensorName)
}

func TestFlagBeatsEnvironment(t *testing.T) {
	t.Setenv("COLDSENTRY_SENSOR_NAME", "from-env")

	opts := &testOptions{SensorName: "default"}
	a := NewApp("test-app", "test", WithOptions(opts), WithRunFunc(func() error { return nil }))

	execute(t, a, "--sensor-name", "from-flag")
	assert.Equal(t, "from-flag", opts.SensorName)
}

func TestConfigFileFillsUnsetFlags(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test-app.yaml"
	require.NoError(t, writeFile(path, "sensor-name: from-file\n"))

	opts := &testOptions{SensorName: "default"}
	a := NewApp("test-app", "test", WithOptions(opts), WithRunFunc(func() error { return nil }))

	execute(t, a, "--config", path)
	assert.Equal(t, "from-file", opts.SensorName)
}
