package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestParseConfFile(t *testing.T) {
	content := "" +
		"# a comment line\n" +
		"bind 0.0.0.0\n" +
		"port 6399\n" +
		"appendonly yes\n" +
		"appendfilename appendonly.aof\n" +
		"appendfsync everysec\n" +
		"aof-use-rdb-preamble yes\n" +
		"databases 4\n" +
		"requirepass secret\n"
	path := writeTempConfig(t, "redis.conf", content)

	old := Properties
	defer func() { Properties = old }()
	SetupConfig(path)

	assert.Equal(t, "0.0.0.0", Properties.Bind)
	assert.Equal(t, 6399, Properties.Port)
	assert.True(t, Properties.AppendOnly)
	assert.Equal(t, "appendonly.aof", Properties.AppendFilename)
	assert.Equal(t, "everysec", Properties.AppendFsync)
	assert.True(t, Properties.AofUseRdbPreamble)
	assert.Equal(t, 4, Properties.Databases)
	assert.Equal(t, "secret", Properties.RequirePass)
	assert.NotEmpty(t, Properties.RunID)
	assert.NotEmpty(t, Properties.CfPath)
	assert.Equal(t, ".", Properties.Dir)
}

func TestParseYamlFile(t *testing.T) {
	content := "" +
		"bind: 127.0.0.1\n" +
		"port: 7000\n" +
		"appendonly: true\n" +
		"databases: 8\n"
	path := writeTempConfig(t, "redis.yaml", content)

	old := Properties
	defer func() { Properties = old }()
	SetupConfig(path)

	assert.Equal(t, "127.0.0.1", Properties.Bind)
	assert.Equal(t, 7000, Properties.Port)
	assert.True(t, Properties.AppendOnly)
	assert.Equal(t, 8, Properties.Databases)
}

func TestRunIDIsUniquePerSetup(t *testing.T) {
	a := genRunID()
	b := genRunID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestAnnounceAddress(t *testing.T) {
	p := &ServerProperties{Bind: "10.0.0.1", Port: 6379}
	assert.Equal(t, "10.0.0.1:6379", p.AnnounceAddress())
}
