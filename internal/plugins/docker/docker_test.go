package dockerplugin

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/plugins/plugintest"
)

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	cfg := DecodeBuild(config.Spec{
		"dockerfile": "Dockerfile",
		"tags":       "runci/tag:latest runci/tag:v1.0",
	})
	require.Equal(t,
		strings.Fields("docker build -f Dockerfile -t runci/tag:latest -t runci/tag:v1.0 ."),
		BuildArgs(cfg),
	)

	require.Equal(t, []string{"docker", "build", "ctx"}, BuildArgs(DecodeBuild(config.Spec{config.ScalarKey: "ctx"})))
}

func TestPullArgs(t *testing.T) {
	t.Parallel()

	images, err := DecodePull(config.Spec{"image": "busybox alpine"})
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"docker", "pull", "busybox"},
		{"docker", "pull", "alpine"},
	}, PullArgs(images))

	images, err = DecodePull(config.Spec{config.ScalarKey: []any{"redis", "postgres:16"}})
	require.NoError(t, err)
	require.Equal(t, []string{"redis", "postgres:16"}, images)

	_, err = DecodePull(config.Spec{})
	require.Error(t, err)
}

// installFakeDocker puts a docker script first on PATH. It echoes its
// arguments and fails when asked to pull an image named "broken".
func installFakeDocker(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	dir := t.TempDir()
	script := "#!/bin/sh\necho \"$@\"\n[ \"$2\" = broken ] && exit 1\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, Binary), []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestPullRunsEveryImage(t *testing.T) {
	installFakeDocker(t)

	result := plugintest.RunStep(t, config.NewStep("pull", PullSelector, config.Spec{"image": "busybox alpine"}), NewPull())
	require.Equal(t, engine.StatusSucceeded, result.Status)

	var pulled []string
	for _, line := range result.Stdout() {
		if strings.HasPrefix(line, "pull ") {
			pulled = append(pulled, line)
		}
	}
	sort.Strings(pulled)
	require.Equal(t, []string{"pull alpine", "pull busybox"}, pulled)
}

func TestPullFailsWhenAnyImageFails(t *testing.T) {
	installFakeDocker(t)

	result := plugintest.RunStep(t, config.NewStep("pull", PullSelector, config.Spec{"image": "alpine broken"}), NewPull())
	require.Equal(t, engine.StatusFailed, result.Status)
}

func TestPullWithoutImageIsFactoryError(t *testing.T) {
	t.Parallel()

	result := plugintest.RunStep(t, config.NewStep("pull", PullSelector, nil), NewPull())
	require.Equal(t, engine.StatusFailed, result.Status)
	require.Contains(t, result.Stderr(), "plugin error [docker-pull]: image name should be specified for docker-pull step")
}

func TestBuildRunsDocker(t *testing.T) {
	installFakeDocker(t)

	result := plugintest.RunStep(t, config.NewStep("build", BuildSelector, config.Spec{"tags": "app:dev"}), NewBuild())
	require.Equal(t, engine.StatusSucceeded, result.Status)
	require.Contains(t, result.Stdout(), "build -t app:dev .")
}
