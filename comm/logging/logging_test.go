package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestNewLogger_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rs485.log")
	logger := NewLogger(Config{Level: "debug", Format: "json", Filename: file, MaxSizeMB: 1})
	logger.Sugar().Debugf("[%-9s] frame %x", "Test", []byte{0xff, 0x00})
	_ = logger.Sync()

	bts, err := os.ReadFile(file)
	require.NoError(t, err)
	t.Logf("%s", bts)
	assert.Contains(t, string(bts), "ff00")
}

func TestGetDefaultLogger(t *testing.T) {
	l1 := GetDefaultLogger()
	l2 := GetDefaultLogger()
	assert.Same(t, l1, l2)
	l1.Infof("[%-9s] default logger ready", "Test")
}
