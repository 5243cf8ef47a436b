package sdk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func project() Project {
	return Project{AppID: "wx123", ProjectPath: "/src/app", PrivateKeyPath: "/keys/private.key"}
}

func TestUploadArgv(t *testing.T) {
	var got []string
	c := NewCLI([]string{"npx", "miniprogram-ci"}, 2, time.Minute)
	c.Exec = func(_ context.Context, argv []string) (string, error) {
		got = argv
		return "", nil
	}

	if err := c.Upload(context.Background(), UploadOptions{Project: project(), Version: "1.0.0", Description: "desc"}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	want := "npx miniprogram-ci upload --pp /src/app --pkp /keys/private.key --appid wx123 --type miniProgram --uv 1.0.0 -r 2 --use-project-config true --ud desc"
	if strings.Join(got, " ") != want {
		t.Fatalf("expected %q, got %q", want, strings.Join(got, " "))
	}
}

func TestPreviewWritesArtifact(t *testing.T) {
	out := filepath.Join(t.TempDir(), "wx-ci", "01ABC.jpg")
	var got []string
	c := NewCLI([]string{"miniprogram-ci"}, 0, 0)
	c.Exec = func(_ context.Context, argv []string) (string, error) {
		got = argv
		return "", os.WriteFile(out, []byte("jpg"), 0o600)
	}

	path, err := c.Preview(context.Background(), PreviewOptions{
		Project:     project(),
		Version:     "1.0.0",
		OutputPath:  out,
		PagePath:    "pages/index/index",
		SearchQuery: "foo=1",
		Scene:       "1011",
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if path != out {
		t.Fatalf("expected %q, got %q", out, path)
	}
	joined := strings.Join(got, " ")
	for _, want := range []string{
		"--qrcode-format image",
		"--qrcode-output-dest " + out,
		"--page-path pages/index/index",
		"--search-query foo=1",
		"--scene 1011",
		"-r 1",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
	if strings.Contains(joined, "--ud") {
		t.Fatalf("empty description must be omitted: %q", joined)
	}
}

func TestPreviewWithoutArtifactIsBuildError(t *testing.T) {
	c := NewCLI([]string{"miniprogram-ci"}, 1, 0)
	c.Exec = func(context.Context, []string) (string, error) { return "", nil }

	_, err := c.Preview(context.Background(), PreviewOptions{Project: project(), Version: "1", OutputPath: filepath.Join(t.TempDir(), "x.jpg")})
	var be *BuildError
	if !errors.As(err, &be) || !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("expected BuildError wrapping ErrNoArtifact, got %v", err)
	}
}

func TestCommandFailureIsBuildError(t *testing.T) {
	c := NewCLI([]string{"miniprogram-ci"}, 1, 0)
	c.Exec = func(context.Context, []string) (string, error) {
		return "Error: invalid ip\n", errors.New("exit status 1")
	}

	err := c.Upload(context.Background(), UploadOptions{Project: project(), Version: "1"})
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("expected BuildError, got %v", err)
	}
	if be.Op != "upload" || be.Stderr != "Error: invalid ip" {
		t.Fatalf("unexpected error %+v", be)
	}
}

func TestRealProcessFailure(t *testing.T) {
	c := NewCLI([]string{"sh", "-c", "echo broken >&2; exit 2", "--"}, 1, time.Second)

	err := c.Upload(context.Background(), UploadOptions{Project: project(), Version: "1"})
	var be *BuildError
	if !errors.As(err, &be) || be.Stderr != "broken" {
		t.Fatalf("expected BuildError with stderr, got %v", err)
	}
}

func TestSplitURL(t *testing.T) {
	p, q := SplitURL("pages/index/index?foo=1&bar=2")
	if p != "pages/index/index" || q != "foo=1&bar=2" {
		t.Fatalf("unexpected split %q %q", p, q)
	}
	p, q = SplitURL("pages/me")
	if p != "pages/me" || q != "" {
		t.Fatalf("unexpected split %q %q", p, q)
	}
}
