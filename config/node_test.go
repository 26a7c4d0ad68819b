package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNodeXML = `<?xml version="1.0" encoding="UTF-8"?>
<config>
  <limit_players>5000</limit_players>
  <http_port>9081</http_port>
  <encrypt_token>ZGVhZGJlZWZkZWFkYmVlZg==</encrypt_token>
  <redis>
    <db><addr>10.0.0.8</addr><port>6380</port><auth>secret</auth><db>3</db></db>
  </redis>
  <node><id>1.0.3.1</id><name>game</name><addr>0.0.0.0</addr><port>7001</port></node>
  <node><id>1.0.4.1</id><name>gate</name><addr>127.0.0.1</addr><port>7002</port></node>
</config>`

func TestParseNodeConfByID(t *testing.T) {
	conf, err := ParseNodeConf([]byte(testNodeXML), "1.0.4.1", "")
	require.NoError(t, err)
	assert.Equal(t, "gate", conf.Name)
	assert.Equal(t, "127.0.0.1:7002", conf.ListenEndpoint())
	assert.Equal(t, uint32(5000), conf.LimitPlayers)
	assert.Equal(t, uint16(9081), conf.HTTPPort)
	assert.Equal(t, []byte("deadbeefdeadbeef"), conf.EncryptToken)
	assert.Equal(t, "10.0.0.8:6380", conf.DbRedis.Endpoint())
	assert.Equal(t, "secret", conf.DbRedis.Pass)
	assert.Equal(t, 3, conf.DbRedis.DbIndex)
}

func TestParseNodeConfByName(t *testing.T) {
	conf, err := ParseNodeConf([]byte(testNodeXML), "", "GAME")
	require.NoError(t, err)
	assert.Equal(t, "1.0.3.1", conf.NodeID.String())
	assert.Equal(t, uint16(7001), conf.ListenPort)
}

func TestParseNodeConfNotFound(t *testing.T) {
	_, err := ParseNodeConf([]byte(testNodeXML), "1.0.9.1", "")
	assert.Error(t, err)

	_, err = ParseNodeConf([]byte("<config>"), "1", "")
	assert.Error(t, err)
}

func TestLoadNodeConfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.xml")
	require.NoError(t, os.WriteFile(path, []byte(testNodeXML), 0o644))

	conf, err := LoadNodeConf(path, "", "game")
	require.NoError(t, err)
	assert.NoError(t, conf.Validate())
	assert.Equal(t, "node", conf.GetName())
}
