package support

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string // stdout followed by stderr
	LastStdout    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	WorkingDir string
	TempDir    string
	EnvVars    []string

	// Server under test
	HTTPTestServer *HTTPTestServerWrapper

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   []byte
	LastHTTPHeaders    map[string]string

	// WebSocket session state
	WebSocket       *WebSocketClient
	LastWSResponse  map[string]interface{}
	LastWSErrorType string
}

// NewTestContext creates a new test context. Commands run inside a fresh
// temporary directory so relative paths in feature files stay isolated.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "pocrop-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		WorkingDir: tempDir,
		TempDir:    tempDir,
		EnvVars: []string{
			// keep user config out of the scenarios
			"HOME=" + tempDir,
			"XDG_CONFIG_HOME=" + filepath.Join(tempDir, ".config"),
			"POCROP_TEMP_DIR=" + tempDir,
		},
		LastHTTPHeaders: map[string]string{},
	}, nil
}

// Cleanup stops servers and removes all temporary files.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if testCtx.WebSocket != nil {
		testCtx.WebSocket.Close()
		testCtx.WebSocket = nil
	}
	if err := testCtx.StopServer(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// AddEnvVar adds an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, fmt.Sprintf("%s=%s", name, value))
}

// Path resolves a path from a feature file against the working directory.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.WorkingDir, name)
}

// substituteCommandVariables replaces {tmp} with the scenario directory.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	return strings.ReplaceAll(command, "{tmp}", testCtx.TempDir)
}
