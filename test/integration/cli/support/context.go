package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/platescan/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	WorkingDir string
	TempDir    string
	WorkDir    string // scratch directory for scenario files, {workdir} in commands
	EnvVars    []string

	// In-process server
	HTTPTestServer *HTTPTestServerWrapper

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
}

// NewTestContext creates a new test context rooted at the project directory.
func NewTestContext() (*TestContext, error) {
	workingDir, err := testutil.GetProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "platescan-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	workDir := filepath.Join(tempDir, "work")
	if err := testutil.EnsureDir(workDir); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	return &TestContext{
		WorkingDir: workingDir,
		TempDir:    tempDir,
		WorkDir:    workDir,
		EnvVars: []string{
			// Keep scenarios away from the developer's models and temp dir.
			"PLATESCAN_MODELS_DIR=" + filepath.Join(tempDir, "models"),
			"PLATESCAN_VIDEO_TEMP_DIR=" + workDir,
		},
	}, nil
}

// Cleanup stops the server and removes all scenario files.
func (testCtx *TestContext) Cleanup() error {
	var errs []error
	if err := testCtx.stopTestHTTPServer(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}
	return errors.Join(errs...)
}

// AddEnvVar adds an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, fmt.Sprintf("%s=%s", name, value))
}

// workPath resolves name inside the scenario work directory.
func (testCtx *TestContext) workPath(name string) string {
	return filepath.Join(testCtx.WorkDir, name)
}
