package inject

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// runFunc runs a command with stdin and returns its combined output.
type runFunc func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

func runCommand(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd.CombinedOutput()
}

// Key names shared by xdotool and wtype.
const (
	keyLeft      = "Left"
	keyRight     = "Right"
	keyBackSpace = "BackSpace"
)

// Exec injects with an external tool: xdotool on X11, wtype on Wayland.
type Exec struct {
	tool  string
	delay time.Duration
	run   runFunc
}

// NewExec creates an Exec actuator for tool.
func NewExec(tool string, delay time.Duration) *Exec {
	return &Exec{tool: tool, delay: delay, run: runCommand}
}

// Apply steps left over the kept characters, erases, types and steps back
// to where the cursor was. The text is written to the tool's stdin.
func (e *Exec) Apply(ctx context.Context, ed Edit) error {
	if ed.Keep > 0 {
		if err := e.press(ctx, keyLeft, ed.Keep); err != nil {
			return err
		}
	}
	if ed.Delete > 0 {
		if err := e.press(ctx, keyBackSpace, ed.Delete); err != nil {
			return err
		}
	}
	if len(ed.Text) > 0 {
		// Output is discarded on failure; some tools echo their input.
		if _, err := e.run(ctx, e.tool, e.typeArgs(), ed.Text); err != nil {
			return fmt.Errorf("%s type: %w", e.tool, err)
		}
	}
	if ed.Keep > 0 {
		return e.press(ctx, keyRight, ed.Keep)
	}
	return nil
}

func (e *Exec) press(ctx context.Context, key string, n int) error {
	if out, err := e.run(ctx, e.tool, e.keyArgs(key, n), nil); err != nil {
		return fmt.Errorf("%s %s: %w: %s", e.tool, strings.ToLower(key), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (e *Exec) delayMs() string {
	return strconv.FormatInt(e.delay.Milliseconds(), 10)
}

func (e *Exec) keyArgs(key string, n int) []string {
	if e.tool == BackendWtype {
		args := []string{"-d", e.delayMs()}
		for i := 0; i < n; i++ {
			args = append(args, "-k", key)
		}
		return args
	}
	return []string{"key", "--clearmodifiers", "--delay", e.delayMs(), "--repeat", strconv.Itoa(n), key}
}

func (e *Exec) typeArgs() []string {
	if e.tool == BackendWtype {
		return []string{"-d", e.delayMs(), "-"}
	}
	return []string{"type", "--clearmodifiers", "--delay", e.delayMs(), "--file", "-"}
}
