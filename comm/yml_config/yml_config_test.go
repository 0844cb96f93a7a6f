package yml_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const simYaml = `
max-cons: 16
device-address: 0x01
bad-crc-rate: 0.25
tick-duration: 10s
`

func writeConf(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "rs485sim.yaml")
	if err := os.WriteFile(path, []byte(simYaml), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateYamlFactory_Path(t *testing.T) {
	path := writeConf(t)
	conf := CreateYamlFactory(path)

	assert.Equal(t, path, conf.ConfigFileUsed())
	assert.Equal(t, 16, conf.GetInt("max-cons"))
	assert.Equal(t, 1, conf.GetInt("device-address"))
	assert.Equal(t, 0.25, conf.GetFloat64("bad-crc-rate"))
	assert.Equal(t, 10*time.Second, conf.GetDuration("tick-duration"))
	assert.Equal(t, "", conf.GetString("not-exists"))
}

func TestCreateYamlFactory_EnvPath(t *testing.T) {
	path := writeConf(t)
	t.Setenv("RS485SIM_CONF_PATH", path)

	conf := CreateYamlFactory("rs485sim")
	assert.Equal(t, path, conf.ConfigFileUsed())
	assert.Equal(t, 16, conf.GetInt("max-cons"))
}

func TestCreateYamlFactory_EnvOverride(t *testing.T) {
	path := writeConf(t)
	t.Setenv("RS485SIM_MAX_CONS", "32")

	conf := CreateYamlFactory(path)
	assert.Equal(t, 32, conf.GetInt("max-cons"))
}

func TestCreateYamlFactory_Missing(t *testing.T) {
	conf := CreateYamlFactory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 0, conf.GetInt("max-cons"))
}

func TestYmlConfig_SetDefault(t *testing.T) {
	conf := CreateYamlFactory(writeConf(t))
	conf.SetDefault("max-cons", 1)
	conf.SetDefault("max-pool-size", 64)
	assert.Equal(t, 16, conf.GetInt("max-cons"))
	assert.Equal(t, 64, conf.GetInt("max-pool-size"))
}

func TestYmlConfig_OnChange(t *testing.T) {
	path := writeConf(t)
	conf := CreateYamlFactory(path)
	changed := make(chan struct{}, 1)
	conf.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	conf.ConfigFileChangeListen()

	if err := os.WriteFile(path, []byte("max-cons: 8\n"), 0600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Skip("no fsnotify event on this platform")
	}
	assert.Eventually(t, func() bool { return conf.GetInt("max-cons") == 8 }, 5*time.Second, 50*time.Millisecond)
}
