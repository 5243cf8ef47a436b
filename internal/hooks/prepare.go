package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/Shopify/go-lua"
	"go.uber.org/zap"
)

// Globals are exposed to the prepare script as lua globals.
type Globals struct {
	ActionID  string // action_id
	Env       string // env
	Mode      string // mode
	ConfigDir string // config_dir, also the working dir of sh()
}

// RunPrepare executes a lua script before the SDK is called. The script may
// call sh(cmd) -> stdout, exit_code and log(msg); raising an error aborts the
// run.
func RunPrepare(ctx context.Context, script string, g Globals, logger *zap.Logger) error {
	if script == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	state := lua.NewState()
	lua.OpenLibraries(state)

	for name, value := range map[string]string{
		"action_id":  g.ActionID,
		"env":        g.Env,
		"mode":       g.Mode,
		"config_dir": g.ConfigDir,
	} {
		state.PushString(value)
		state.SetGlobal(name)
	}

	state.Register("sh", func(state *lua.State) int {
		cmd := lua.CheckString(state, 1)
		out, code := shell(ctx, g.ConfigDir, cmd)
		logger.Debug("prepare sh", zap.String("cmd", cmd), zap.Int("exit_code", code))
		state.PushString(out)
		state.PushInteger(code)
		return 2
	})
	state.Register("log", func(state *lua.State) int {
		logger.Info(lua.CheckString(state, 1), zap.String("hook", "prepare"))
		return 0
	})

	if err := lua.DoFile(state, script); err != nil {
		return fmt.Errorf("prepare hook %s: %w", script, err)
	}
	return nil
}

func shell(ctx context.Context, dir, cmd string) (string, int) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = dir
	var stdout bytes.Buffer
	c.Stdout = &stdout

	err := c.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return string(bytes.TrimSpace(stdout.Bytes())), 0
	case errors.As(err, &exitErr):
		return string(bytes.TrimSpace(stdout.Bytes())), exitErr.ExitCode()
	default:
		return "", -1
	}
}
