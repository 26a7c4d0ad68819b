package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig is a section used by the manager tests.
type TestConfig struct {
	Name     string        `mapstructure:"name"`
	Port     int           `mapstructure:"port"`
	MaxConns int           `mapstructure:"maxConns"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (c *TestConfig) GetName() string { return c.Name }

func (c *TestConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be positive")
	}
	return nil
}

// TestChangeListener records change notifications.
type TestChangeListener struct {
	mu          sync.Mutex
	ChangeCount int32
	LastConfig  Config
	LastOld     Config
	LastName    string
}

func (l *TestChangeListener) OnConfigChanged(configName string, newConfig, oldConfig Config) error {
	atomic.AddInt32(&l.ChangeCount, 1)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.LastConfig = newConfig
	l.LastOld = oldConfig
	l.LastName = configName
	return nil
}

func writeYaml(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeYaml(t, dir, "server", "name: test-server\nport: 8080\nmaxConns: 1000\ntimeout: 1500ms\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)

	cfg := &TestConfig{}
	require.NoError(t, cm.LoadConfig("server", cfg))
	assert.Equal(t, "test-server", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 1000, cfg.MaxConns)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)

	got, err := cm.GetConfig("server")
	require.NoError(t, err)
	assert.Same(t, cfg, got.(*TestConfig))
}

func TestGetConfigNotFound(t *testing.T) {
	cm := NewConfigManager()
	_, err := cm.GetConfig("nonexistent")
	assert.Error(t, err)
}

func TestLoadConfigValidateFails(t *testing.T) {
	dir := t.TempDir()
	writeYaml(t, dir, "invalid", "name: \"\"\nport: 70000\nmaxConns: -100\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)
	assert.Error(t, cm.LoadConfig("invalid", &TestConfig{}))
}

func TestRegisterValidator(t *testing.T) {
	dir := t.TempDir()
	writeYaml(t, dir, "limited", "name: limited\nport: 9500\nmaxConns: 10\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)
	RegisterValidator(cm, "limited", func(c Config) error {
		if c.(*TestConfig).Port > 9000 {
			return errors.New("port too high")
		}
		return nil
	})
	assert.Error(t, cm.LoadConfig("limited", &TestConfig{}))
}

func TestEnvironmentDirAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	envDir := filepath.Join(dir, "production")
	require.NoError(t, os.MkdirAll(envDir, 0o755))
	writeYaml(t, envDir, "envcfg", "name: prod\nport: 80\nmaxConns: 5\n")
	t.Setenv("ENVCFG_PORT", "8081")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)
	cm.SetEnvironment("production")

	cfg := &TestConfig{}
	require.NoError(t, cm.LoadConfig("envcfg", cfg))
	assert.Equal(t, "prod", cfg.Name)
	assert.Equal(t, 8081, cfg.Port)
}

func TestConfigChangeListener(t *testing.T) {
	dir := t.TempDir()
	path := writeYaml(t, dir, "hook", "name: hook-server\nport: 8080\nmaxConns: 100\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)

	listener := &TestChangeListener{}
	cm.AddChangeListener(listener)

	var hookCalls atomic.Int32
	RegisterHook(cm, "hook", func(oldVal, newVal Config) error {
		hookCalls.Add(1)
		return nil
	})

	require.NoError(t, cm.LoadConfig("hook", &TestConfig{}))
	require.NoError(t, os.WriteFile(path, []byte("name: hook-server-updated\nport: 9090\nmaxConns: 200\n"), 0o644))

	require.Eventually(t, func() bool {
		cfg, err := cm.GetConfig("hook")
		return err == nil && cfg.(*TestConfig).Port == 9090
	}, 3*time.Second, 20*time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&listener.ChangeCount), int32(1))
	assert.GreaterOrEqual(t, hookCalls.Load(), int32(1))
	listener.mu.Lock()
	assert.Equal(t, "hook", listener.LastName)
	assert.NotNil(t, listener.LastOld)
	listener.mu.Unlock()

	cm.RemoveChangeListener(listener)
	before := atomic.LoadInt32(&listener.ChangeCount)
	require.NoError(t, os.WriteFile(path, []byte("name: hook-server-final\nport: 9191\nmaxConns: 300\n"), 0o644))
	require.Eventually(t, func() bool {
		cfg, _ := cm.GetConfig("hook")
		return cfg.(*TestConfig).Port == 9191
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt32(&listener.ChangeCount))
}

func TestReloadKeepsOldOnInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeYaml(t, dir, "keep", "name: keep\nport: 8080\nmaxConns: 1\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)
	require.NoError(t, cm.LoadConfig("keep", &TestConfig{}))

	require.NoError(t, os.WriteFile(path, []byte("name: keep\nport: 0\nmaxConns: 1\n"), 0o644))
	time.Sleep(300 * time.Millisecond)

	cfg, err := cm.GetConfig("keep")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.(*TestConfig).Port)
}

func TestSingletonInstance(t *testing.T) {
	ResetInstance()
	defer ResetInstance()

	first := GetInstance()
	var wg sync.WaitGroup
	instances := make([]ConfigManager, 50)
	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instances[i] = GetInstance()
		}(i)
	}
	wg.Wait()
	for _, inst := range instances {
		assert.Same(t, first, inst)
	}

	mock := NewConfigManager()
	SetInstanceForTesting(mock)
	assert.Same(t, mock, GetInstance())
}
