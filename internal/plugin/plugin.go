// Package plugin describes the entries of the bootstrap list and installs
// them into a run context.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/event"
	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// Metadata identifies a plugin. A plugin with a runner factory is selected
// by steps whose type equals Name.
type Metadata struct {
	Name        string `validate:"required,selector"`
	Version     string `validate:"required,semver"`
	Description string
}

// Validate checks the metadata with the shared configuration validator.
func (m Metadata) Validate() error {
	err := config.Validator().Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return runcierrors.NewPluginError(m.Name, err)
	}
	fe := verrs[0]
	field := "plugin." + strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return runcierrors.NewValidationError(field, "is required", err)
	case "semver":
		return runcierrors.NewValidationError(field, fmt.Sprintf("invalid version %q (expected format: X.Y.Z)", fe.Value()), err)
	case "selector":
		return runcierrors.NewValidationError(field, fmt.Sprintf("invalid name %q (lowercase letters, digits and dashes)", fe.Value()), err)
	default:
		return runcierrors.NewValidationError(field, fmt.Sprintf("failed %s validation", fe.Tag()), err)
	}
}

// Binding attaches a handler to one event kind.
type Binding struct {
	Kind    event.Kind
	Handler event.Handler
}

// Bind is a shorthand for a slice of bindings sharing one handler.
func Bind(handler event.Handler, kinds ...event.Kind) []Binding {
	out := make([]Binding, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, Binding{Kind: kind, Handler: handler})
	}
	return out
}

// Plugin is one entry of the bootstrap list: an optional runner bound to
// its name plus listener and processor bindings.
type Plugin struct {
	Metadata   Metadata
	Factory    engine.RunnerFactory
	// Invokes lists the targets a step runs, for runners that run targets.
	Invokes    engine.InvocationFunc
	Listeners  []Binding
	Processors []Binding
}

// Selector is the step type served by the plugin, empty for observers.
func (p Plugin) Selector() string {
	if p.Factory == nil {
		return ""
	}
	return p.Metadata.Name
}

// Install registers plugins in order. Registration order is the callback
// order for each event kind. Duplicate plugin names and invalid metadata are
// rejected before anything is registered.
func Install(rc *engine.Context, plugins ...Plugin) error {
	if rc == nil {
		return runcierrors.NewValidationError("context", "run context is nil", nil)
	}

	seen := make(map[string]bool, len(plugins))
	for _, p := range plugins {
		if err := p.Metadata.Validate(); err != nil {
			return err
		}
		if seen[p.Metadata.Name] {
			return runcierrors.NewPluginError(p.Metadata.Name, fmt.Errorf("plugin '%s' listed more than once", p.Metadata.Name))
		}
		seen[p.Metadata.Name] = true
	}

	for _, p := range plugins {
		if p.Factory != nil {
			if err := rc.RegisterRunner(p.Metadata.Name, p.Factory); err != nil {
				return err
			}
			rc.RegisterInvocation(p.Metadata.Name, p.Invokes)
		}
		for _, b := range p.Listeners {
			rc.AddListener(b.Kind, b.Handler)
		}
		for _, b := range p.Processors {
			rc.AddProcessor(b.Kind, b.Handler)
		}
	}
	return nil
}

// List returns the plugins' metadata sorted by name.
func List(plugins ...Plugin) []Metadata {
	out := make([]Metadata, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, p.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
