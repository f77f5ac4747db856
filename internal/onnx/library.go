package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"

	// LibraryPathEnv overrides shared library discovery.
	LibraryPathEnv = "ONNXRUNTIME_LIB_PATH"
)

var envMu sync.Mutex

// systemLibraryPaths returns CPU library locations to try in order.
func systemLibraryPaths() []string {
	return []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	}
}

// findProjectRoot finds the project root directory by looking for go.mod.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	projectRoot := cwd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			return projectRoot, nil
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			return "", errors.New("could not find project root")
		}
		projectRoot = parent
	}
}

// libraryName returns the appropriate library filename for the given OS.
func libraryName(goos string) (string, error) {
	switch goos {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// ResolveLibraryPath picks the ONNX Runtime shared library to load.
// Order: explicit path, ONNXRUNTIME_LIB_PATH, system locations, <project>/onnxruntime/lib.
func ResolveLibraryPath(explicit string) (string, error) {
	for _, p := range []string{explicit, os.Getenv(LibraryPathEnv)} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("ONNX Runtime library not found at %s: %w", p, err)
		}
		return p, nil
	}

	for _, p := range systemLibraryPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return "", err
	}
	libName, err := libraryName(runtime.GOOS)
	if err != nil {
		return "", err
	}
	libPath := filepath.Join(projectRoot, "onnxruntime", "lib", libName)
	if _, err := os.Stat(libPath); err != nil {
		return "", fmt.Errorf("ONNX Runtime library not found at %s", libPath)
	}
	return libPath, nil
}

// InitEnvironment points onnxruntime_go at the shared library and initializes the
// runtime once per process. Later calls are no-ops.
func InitEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}

	path, err := ResolveLibraryPath(libraryPath)
	if err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	onnxruntime_go.SetSharedLibraryPath(path)

	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

// DestroyEnvironment tears down the runtime at process shutdown.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !onnxruntime_go.IsInitialized() {
		return nil
	}
	return onnxruntime_go.DestroyEnvironment()
}
