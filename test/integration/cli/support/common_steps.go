package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// RegisterCommonSteps registers command execution and output assertions.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON output should contain "([^"]*)"$`, testCtx.theJSONOutputShouldContainField)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should not exist$`, testCtx.theFileShouldNotExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

// iRunCommand executes a CLI command inside the scenario directory.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)
	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	args := strings.Fields(command)
	if len(args) == 0 {
		return errors.New("empty command")
	}
	if args[0] == "pocrop" {
		if bin := os.Getenv("POCROP_BIN"); bin != "" {
			args[0] = bin
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) // #nosec G204 -- test harness
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)
	testCtx.LastStdout = stdout.String()
	testCtx.LastOutput = stdout.String() + stderr.String()
	testCtx.LastError = err
	testCtx.LastExitCode = 0

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			testCtx.LastExitCode = exitErr.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command %q failed with exit code %d: %s",
			testCtx.LastCommand, testCtx.LastExitCode, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command %q succeeded but was expected to fail: %s",
			testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	expected = testCtx.substituteCommandVariables(expected)
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("output does not contain %q.\nActual output:\n%s", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(unexpected string) error {
	if strings.Contains(testCtx.LastOutput, unexpected) {
		return fmt.Errorf("output unexpectedly contains %q.\nActual output:\n%s", unexpected, testCtx.LastOutput)
	}
	return nil
}

// jsonOutput decodes stdout; log records go to stderr.
func (testCtx *TestContext) jsonOutput() (interface{}, error) {
	var data interface{}
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &data); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w\nOutput:\n%s", err, testCtx.LastStdout)
	}
	return data, nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := testCtx.jsonOutput()
	return err
}

func (testCtx *TestContext) theJSONOutputShouldContainField(path string) error {
	data, err := testCtx.jsonOutput()
	if err != nil {
		return err
	}
	if _, err := lookupJSONPath(data, path); err != nil {
		return err
	}
	return nil
}

func (testCtx *TestContext) theJSONFieldShouldBe(path, expected string) error {
	data, err := testCtx.jsonOutput()
	if err != nil {
		return err
	}
	v, err := lookupJSONPath(data, path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("JSON field %s is %q, expected %q", path, got, expected)
	}
	return nil
}

// lookupJSONPath resolves a dotted path such as "Rectangles.0.1.X".
func lookupJSONPath(data interface{}, path string) (interface{}, error) {
	current := data
	for _, part := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]interface{}:
			next, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("JSON field %q not found (at %q)", path, part)
			}
			current = next
		case []interface{}:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("JSON index %q out of range in %q", part, path)
			}
			current = v[i]
		default:
			return nil, fmt.Errorf("JSON field %q not found (at %q)", path, part)
		}
	}
	return current, nil
}

func (testCtx *TestContext) theErrorShouldMention(expected string) error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("expected command to fail, but it succeeded")
	}
	if !strings.Contains(strings.ToLower(testCtx.LastOutput), strings.ToLower(expected)) {
		return fmt.Errorf("error output does not mention %q.\nActual output:\n%s", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if _, err := os.Stat(testCtx.Path(testCtx.substituteCommandVariables(name))); err != nil {
		return fmt.Errorf("file %s does not exist: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldNotExist(name string) error {
	if _, err := os.Stat(testCtx.Path(testCtx.substituteCommandVariables(name))); err == nil {
		return fmt.Errorf("file %s exists but should not", name)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, expected string) error {
	data, err := os.ReadFile(testCtx.Path(testCtx.substituteCommandVariables(name)))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain %q", name, expected)
	}
	return nil
}
