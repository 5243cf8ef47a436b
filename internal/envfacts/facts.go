package envfacts

import (
	"context"
	"os/exec"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Unknown is reported for every fact that could not be determined.
const Unknown = "unknown"

// Provider answers who triggered a run and from which revision. Methods never
// fail; they return Unknown instead.
type Provider interface {
	User(ctx context.Context) string
	Branch(ctx context.Context) string
	Commit(ctx context.Context) string
	CommitMessage(ctx context.Context) string
}

// Facts is a snapshot of a Provider.
type Facts struct {
	User          string
	Branch        string
	CommitID      string
	CommitMessage string
}

func Collect(ctx context.Context, p Provider) Facts {
	return Facts{
		User:          p.User(ctx),
		Branch:        p.Branch(ctx),
		CommitID:      p.Commit(ctx),
		CommitMessage: p.CommitMessage(ctx),
	}
}

// Runner executes a command and returns its trimmed stdout.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ciVars are the GitLab CI variables consulted before or after git.
type ciVars struct {
	UserName      string `env:"GITLAB_USER_NAME"`
	CommitBranch  string `env:"CI_COMMIT_BRANCH"`
	CommitRefName string `env:"CI_COMMIT_REF_NAME"`
	CommitSHA     string `env:"CI_COMMIT_SHA"`
	CommitMessage string `env:"CI_COMMIT_MESSAGE"`
}

// Git reads facts from the CI environment and the git checkout in Dir.
type Git struct {
	Dir string
	Run Runner

	ci ciVars
}

func NewGit(dir string, run Runner) *Git {
	if run == nil {
		run = ExecRunner
	}
	g := &Git{Dir: dir, Run: run}
	// string-only fields; Parse cannot fail on them
	_ = env.Parse(&g.ci)
	return g
}

// User prefers the CI user over the local git identity.
func (g *Git) User(ctx context.Context) string {
	return first(g.ci.UserName, g.git(ctx, "config", "user.name"))
}

// Branch prefers git; detached CI checkouts fall back to the CI ref.
func (g *Git) Branch(ctx context.Context) string {
	return first(g.git(ctx, "branch", "--show-current"), g.ci.CommitBranch, g.ci.CommitRefName)
}

func (g *Git) Commit(ctx context.Context) string {
	return first(g.git(ctx, "log", "-1", "--format=%H"), g.ci.CommitSHA)
}

func (g *Git) CommitMessage(ctx context.Context) string {
	return first(g.git(ctx, "log", "-1", "--format=%B"), g.ci.CommitMessage)
}

func (g *Git) git(ctx context.Context, args ...string) string {
	if g.Dir != "" {
		args = append([]string{"-C", g.Dir}, args...)
	}
	out, err := g.Run(ctx, "git", args...)
	if err != nil {
		return ""
	}
	return out
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return Unknown
}
