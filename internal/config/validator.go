package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern     = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	targetNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
	selectorPattern   = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	sshGitPattern     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+:[a-zA-Z0-9._/~-]+$`)
)

// Validator returns the shared validator instance, configured with the
// pipeline-specific tags: semver, target_name, selector and git_url.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("target_name", func(fl validator.FieldLevel) bool {
			return targetNamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("selector", func(fl validator.FieldLevel) bool {
			return selectorPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("git_url", func(fl validator.FieldLevel) bool {
			return isGitURL(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidateProject checks struct tags, target name uniqueness, dependency
// resolution and the absence of dependency cycles.
func ValidateProject(project *Project) error {
	if project == nil {
		return runcierrors.NewValidationError("project", "project is nil", nil)
	}

	if err := Validator().Struct(project); err != nil {
		return convertValidationError(err)
	}

	index := make(map[string]int, len(project.Targets))
	for i, target := range project.Targets {
		if _, exists := index[target.Name]; exists {
			return runcierrors.NewValidationError(fieldForTarget(target.Name, "name"), fmt.Sprintf("duplicate target name %q", target.Name), nil)
		}
		index[target.Name] = i
	}

	for _, target := range project.Targets {
		for _, dep := range target.Dependencies {
			if _, ok := index[dep]; !ok {
				return runcierrors.NewValidationError(
					fieldForTarget(target.Name, "dependencies"),
					fmt.Sprintf("references unknown target %q", dep),
					runcierrors.NewUnknownTargetError(dep),
				)
			}
		}
	}

	if cycle := detectCycle(project.Targets); len(cycle) > 0 {
		cycleErr := &runcierrors.CycleError{Cycle: cycle}
		return runcierrors.NewValidationError("targets", cycleErr.Error(), cycleErr)
	}

	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		return runcierrors.NewValidationError(yamlishFieldName(ve), tagMessage(ve), err)
	}

	return runcierrors.NewValidationError("project", err.Error(), err)
}

// tagMessage describes a failed tag without repeating the field path.
func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "target_name":
		return fmt.Sprintf("invalid target name %q (letters, digits, '_', '.', ':' and '-', starting with a letter or digit)", fe.Value())
	case "selector":
		return fmt.Sprintf("invalid name %q (lowercase letters, digits and dashes)", fe.Value())
	case "semver":
		return fmt.Sprintf("invalid version %q (expected format: X.Y.Z)", fe.Value())
	case "git_url":
		return fmt.Sprintf("invalid git url %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// yamlishFieldName turns "Project.Targets[0].Steps[1].Type" into "targets[0].steps[1].type".
func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForTarget(name, field string) string {
	return fmt.Sprintf("targets.%s.%s", name, field)
}

func isGitURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}

	if parsed, err := url.Parse(raw); err == nil {
		switch strings.ToLower(parsed.Scheme) {
		case "http", "https", "ssh", "git":
			return parsed.Host != ""
		case "file":
			return parsed.Path != ""
		}
	}

	if sshGitPattern.MatchString(raw) {
		return true
	}

	// local repositories
	if strings.Contains(raw, "\x00") {
		return false
	}
	return strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../")
}
