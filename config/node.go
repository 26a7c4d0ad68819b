package config

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/lcx/commlib/utils"
)

// RedisAddr is a redis endpoint of the node configuration.
type RedisAddr struct {
	Addr    string `xml:"addr"`
	Port    uint16 `xml:"port"`
	Pass    string `xml:"auth"`
	DbIndex int    `xml:"db"`
}

// Endpoint returns "addr:port".
func (r RedisAddr) Endpoint() string {
	return net.JoinHostPort(r.Addr, strconv.Itoa(int(r.Port)))
}

type xmlNode struct {
	ID   string `xml:"id"`
	Name string `xml:"name"`
	Addr string `xml:"addr"`
	Port uint16 `xml:"port"`
}

type xmlRoot struct {
	XMLName      xml.Name  `xml:"config"`
	LimitPlayers uint32    `xml:"limit_players"`
	HTTPPort     string    `xml:"http_port"`
	EncryptToken string    `xml:"encrypt_token"`
	DbRedis      RedisAddr `xml:"redis>db"`
	Nodes        []xmlNode `xml:"node"`
}

// NodeConf is the per-node configuration read from the node XML file.
//
//	<config>
//	  <limit_players>5000</limit_players>
//	  <http_port>8081</http_port>
//	  <encrypt_token>base64 pre-shared secret</encrypt_token>
//	  <redis><db><addr>127.0.0.1</addr><port>6379</port><auth></auth><db>0</db></db></redis>
//	  <node><id>1.0.3.1</id><name>game</name><addr>0.0.0.0</addr><port>7001</port></node>
//	</config>
type NodeConf struct {
	NodeID       utils.NodeID
	Name         string
	ListenAddr   string
	ListenPort   uint16
	LimitPlayers uint32
	HTTPPort     uint16
	DbRedis      RedisAddr
	EncryptToken []byte
}

// GetName implements Config.
func (c *NodeConf) GetName() string {
	return "node"
}

// Validate implements Config.
func (c *NodeConf) Validate() error {
	if c.NodeID == 0 {
		return errors.New("node id is zero")
	}
	if c.ListenAddr == "" {
		return errors.New("listen addr is empty")
	}
	return nil
}

// ListenEndpoint returns "addr:port".
func (c *NodeConf) ListenEndpoint() string {
	return net.JoinHostPort(c.ListenAddr, strconv.Itoa(int(c.ListenPort)))
}

// LoadNodeConf reads the XML file at path and selects the node matching
// nodeID, or the node named srvName when nodeID is empty.
func LoadNodeConf(path, nodeID, srvName string) (*NodeConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node conf failed: %w", err)
	}
	return ParseNodeConf(data, nodeID, srvName)
}

// ParseNodeConf is LoadNodeConf on in-memory XML.
func ParseNodeConf(data []byte, nodeID, srvName string) (*NodeConf, error) {
	var root xmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse node conf failed: %w", err)
	}

	conf := &NodeConf{
		LimitPlayers: root.LimitPlayers,
		HTTPPort:     8081,
		DbRedis:      root.DbRedis,
	}
	if conf.DbRedis.Addr == "" {
		conf.DbRedis.Addr = "127.0.0.1"
	}
	if conf.DbRedis.Port == 0 {
		conf.DbRedis.Port = 6379
	}

	if s := strings.TrimSpace(root.HTTPPort); s != "" {
		port, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("http_port %q: %w", s, err)
		}
		conf.HTTPPort = uint16(port)
	}

	if tok := strings.TrimSpace(root.EncryptToken); tok != "" {
		if raw, err := base64.StdEncoding.DecodeString(tok); err == nil {
			conf.EncryptToken = raw
		} else {
			conf.EncryptToken = []byte(tok)
		}
	}

	var want utils.NodeID
	if nodeID != "" && nodeID != "0" {
		var err error
		if want, err = utils.ParseNodeID(nodeID); err != nil {
			return nil, fmt.Errorf("invalid node id %q: %w", nodeID, err)
		}
	}

	for _, n := range root.Nodes {
		id, err := utils.ParseNodeID(n.ID)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Name, err)
		}
		if (want != 0 && id == want) || (want == 0 && srvName != "" && strings.EqualFold(n.Name, srvName)) {
			conf.NodeID = id
			conf.Name = n.Name
			conf.ListenAddr = n.Addr
			conf.ListenPort = n.Port
			break
		}
	}

	if conf.NodeID == 0 {
		return nil, fmt.Errorf("node id:%q name:%q not found", nodeID, srvName)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
