package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

func target(name string, deps ...string) Target {
	return Target{Name: name, Dependencies: deps, Steps: []Step{NewStep("", "command", Spec{"run": "true"})}}
}

func TestValidateProject(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		project *Project
		field   string
		assert  func(t *testing.T, err error)
	}{
		{
			name:    "valid",
			project: &Project{Targets: []Target{target("build"), target("default", "build")}},
		},
		{
			name:    "nil project",
			project: nil,
			field:   "project",
		},
		{
			name:    "duplicate names",
			project: &Project{Targets: []Target{target("a"), target("a")}},
			field:   "targets.a.name",
		},
		{
			name:    "unknown dependency",
			project: &Project{Targets: []Target{target("a", "ghost")}},
			field:   "targets.a.dependencies",
			assert: func(t *testing.T, err error) {
				var unknown *runcierrors.UnknownTargetError
				require.ErrorAs(t, err, &unknown)
				require.Equal(t, []string{"ghost"}, unknown.Names)
			},
		},
		{
			name:    "cycle",
			project: &Project{Targets: []Target{target("a", "b"), target("b", "a")}},
			field:   "targets",
			assert: func(t *testing.T, err error) {
				var cycle *runcierrors.CycleError
				require.ErrorAs(t, err, &cycle)
				require.Equal(t, []string{"a", "b", "a"}, cycle.Cycle)
			},
		},
		{
			name:    "bad target name",
			project: &Project{Targets: []Target{target("has space")}},
			field:   "targets[0].name",
			assert: func(t *testing.T, err error) {
				require.Equal(t, 1, strings.Count(err.Error(), "targets[0].name"))
				require.Contains(t, err.Error(), `invalid target name "has space"`)
			},
		},
		{
			name: "any step type",
			project: &Project{Targets: []Target{{
				Name:  "a",
				Steps: []Step{NewStep("s", "my_tool", nil), NewStep("t", "dockerBuild", nil)},
			}}},
		},
		{
			name: "empty step type",
			project: &Project{Targets: []Target{{
				Name:  "a",
				Steps: []Step{NewStep("s", "", nil)},
			}}},
			field: "targets[0].steps[0].type",
			assert: func(t *testing.T, err error) {
				require.EqualError(t, err, "validation error: targets[0].steps[0].type: is required")
			},
		},
		{
			name:    "empty dependency name",
			project: &Project{Targets: []Target{target("a", "")}},
			field:   "targets[0].dependencies[0]",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateProject(tc.project)
			if tc.field == "" {
				require.NoError(t, err)
				return
			}

			var validationErr *runcierrors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Equal(t, tc.field, validationErr.Field)
			if tc.assert != nil {
				tc.assert(t, err)
			}
		})
	}
}

func TestValidatorCustomTags(t *testing.T) {
	t.Parallel()

	type sample struct {
		Version  string `validate:"semver"`
		Selector string `validate:"selector"`
		URL      string `validate:"git_url"`
	}

	v := Validator()
	require.NoError(t, v.Struct(sample{Version: "1.2.3", Selector: "docker-pull", URL: "https://github.com/a/b.git"}))
	require.NoError(t, v.Struct(sample{Version: "0.1.0-rc.1", Selector: "command", URL: "git@github.com:a/b.git"}))
	require.NoError(t, v.Struct(sample{Version: "1.0.0", Selector: "git-clone", URL: "/tmp/repo"}))

	require.Error(t, v.Struct(sample{Version: "1.0", Selector: "command", URL: "/tmp/repo"}))
	require.Error(t, v.Struct(sample{Version: "1.0.0", Selector: "Docker", URL: "/tmp/repo"}))
	require.Error(t, v.Struct(sample{Version: "1.0.0", Selector: "command", URL: "relative/repo"}))
	require.Error(t, v.Struct(sample{Version: "1.0.0", Selector: "command", URL: "https://"}))
}
