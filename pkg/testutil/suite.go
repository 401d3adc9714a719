package testutil

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigFileSuite provides a temporary directory and a context for tests that
// load parameter files from disk.
type ConfigFileSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	tempDir string
}

// SetupTest runs before each test in the suite
func (s *ConfigFileSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)

	tempDir, err := os.MkdirTemp("", "prototrain-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir
}

// TearDownTest runs after each test in the suite
func (s *ConfigFileSuite) TearDownTest() {
	s.cancel()
	if s.tempDir != "" {
		_ = os.RemoveAll(s.tempDir)
	}
}

// Context returns the test context
func (s *ConfigFileSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the temporary directory path
func (s *ConfigFileSuite) TempDir() string {
	return s.tempDir
}

// CreateConfigFile writes content under the temporary directory and returns its path.
func (s *ConfigFileSuite) CreateConfigFile(name, content string) string {
	path := filepath.Join(s.tempDir, name)
	require.NoError(s.T(), os.WriteFile(path, []byte(content), 0o600))
	return path
}
