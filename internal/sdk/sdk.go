package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BuildError means the SDK could not produce the upload or the preview
// artifact. The cause is opaque to wx-ci.
type BuildError struct {
	Op     string // upload | preview
	Stderr string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("miniprogram-ci %s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("miniprogram-ci %s: %v", e.Op, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

var ErrNoArtifact = errors.New("sdk produced no artifact")

// Project identifies the mini-program and its upload key.
type Project struct {
	AppID          string
	ProjectPath    string
	PrivateKeyPath string
}

type UploadOptions struct {
	Project     Project
	Version     string
	Description string
}

type PreviewOptions struct {
	Project     Project
	Version     string
	Description string
	OutputPath  string // where the QR image is written
	PagePath    string // optional
	SearchQuery string // optional
	Scene       string // optional
}

// Runner produces builds. Preview returns the path of the QR image.
type Runner interface {
	Upload(ctx context.Context, opts UploadOptions) error
	Preview(ctx context.Context, opts PreviewOptions) (string, error)
}

// ExecFunc runs argv and returns its stderr.
type ExecFunc func(ctx context.Context, argv []string) (stderr string, err error)

// CLI drives the miniprogram-ci command line.
type CLI struct {
	Command []string // e.g. ["npx", "miniprogram-ci"]
	Robot   int
	Timeout time.Duration
	Exec    ExecFunc
}

func NewCLI(command []string, robot int, timeout time.Duration) *CLI {
	if robot <= 0 {
		robot = 1
	}
	return &CLI{Command: command, Robot: robot, Timeout: timeout, Exec: execArgv}
}

func (c *CLI) Upload(ctx context.Context, opts UploadOptions) error {
	argv := c.argv("upload", opts.Project, opts.Version, opts.Description)
	return c.run(ctx, "upload", argv)
}

func (c *CLI) Preview(ctx context.Context, opts PreviewOptions) (string, error) {
	if opts.OutputPath == "" {
		return "", &BuildError{Op: "preview", Err: errors.New("output path is required")}
	}
	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	argv := c.argv("preview", opts.Project, opts.Version, opts.Description)
	argv = append(argv, "--qrcode-format", "image", "--qrcode-output-dest", opts.OutputPath)
	if opts.PagePath != "" {
		argv = append(argv, "--page-path", opts.PagePath)
	}
	if opts.SearchQuery != "" {
		argv = append(argv, "--search-query", opts.SearchQuery)
	}
	if opts.Scene != "" {
		argv = append(argv, "--scene", opts.Scene)
	}

	if err := c.run(ctx, "preview", argv); err != nil {
		return "", err
	}
	if _, err := os.Stat(opts.OutputPath); err != nil {
		return "", &BuildError{Op: "preview", Err: fmt.Errorf("%w: %v", ErrNoArtifact, err)}
	}
	return opts.OutputPath, nil
}

func (c *CLI) argv(op string, p Project, version, desc string) []string {
	argv := append([]string{}, c.Command...)
	argv = append(argv, op,
		"--pp", p.ProjectPath,
		"--pkp", p.PrivateKeyPath,
		"--appid", p.AppID,
		"--type", "miniProgram",
		"--uv", version,
		"-r", strconv.Itoa(c.Robot),
		"--use-project-config", "true",
	)
	if desc != "" {
		argv = append(argv, "--ud", desc)
	}
	return argv
}

func (c *CLI) run(ctx context.Context, op string, argv []string) error {
	if len(argv) == 0 || argv[0] == "" {
		return &BuildError{Op: op, Err: errors.New("sdk command is empty")}
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	run := c.Exec
	if run == nil {
		run = execArgv
	}
	if stderr, err := run(ctx, argv); err != nil {
		return &BuildError{Op: op, Stderr: tail(stderr, 2048), Err: err}
	}
	return nil
}

func execArgv(ctx context.Context, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// SplitURL splits a preview url into page path and search query.
func SplitURL(raw string) (pagePath, searchQuery string) {
	pagePath, searchQuery, _ = strings.Cut(raw, "?")
	return pagePath, searchQuery
}
