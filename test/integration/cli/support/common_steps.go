package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/platescan/internal/testutil"
	"github.com/cucumber/godog"
)

// substituteCommandVariables expands {workdir} and resolves the CLI binary.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	command = strings.ReplaceAll(command, "{workdir}", testCtx.WorkDir)
	if bin := os.Getenv("PLATESCAN_BIN"); bin != "" && strings.HasPrefix(command, "platescan ") {
		command = bin + strings.TrimPrefix(command, "platescan")
	}
	return command
}

// iRunCommand executes a command and stores the result.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	output, err := cmd.CombinedOutput()
	testCtx.LastOutput = string(output)
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	var exitError *exec.ExitError
	switch {
	case err == nil:
		testCtx.LastExitCode = 0
	case errors.As(err, &exitError):
		testCtx.LastExitCode = exitError.ExitCode()
	default:
		testCtx.LastExitCode = -1
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

// theErrorShouldMention verifies the failure output mentions text, case-insensitively.
func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if !strings.Contains(strings.ToLower(testCtx.LastOutput), strings.ToLower(text)) {
		return fmt.Errorf("error output does not mention '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// aSyntheticPlateImage writes a generated scene with one plate into the work directory.
func (testCtx *TestContext) aSyntheticPlateImage(name string) error {
	return testutil.WriteScenePNG(testCtx.workPath(name), testutil.DefaultSceneConfig())
}

// aFileWithContent writes a plain file into the work directory.
func (testCtx *TestContext) aFileWithContent(name, content string) error {
	path := testCtx.workPath(name)
	if err := testutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

// theFileShouldExist checks a file in the work directory.
func (testCtx *TestContext) theFileShouldExist(name string) error {
	if !testutil.FileExists(testCtx.workPath(name)) {
		return fmt.Errorf("expected %s to exist", name)
	}
	return nil
}

// theFileShouldNotExist checks a file is absent from the work directory.
func (testCtx *TestContext) theFileShouldNotExist(name string) error {
	if testutil.FileExists(testCtx.workPath(name)) {
		return fmt.Errorf("expected %s to be removed", name)
	}
	return nil
}

// RegisterCommonSteps registers command execution and file steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)

	sc.Step(`^a synthetic plate image "([^"]*)"$`, testCtx.aSyntheticPlateImage)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileWithContent)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should not exist$`, testCtx.theFileShouldNotExist)
}
