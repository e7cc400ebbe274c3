package config

// DefaultFile is the pipeline file looked up when none is given.
const DefaultFile = "runci.yml"

// DefaultTarget is run when no target is requested.
const DefaultTarget = "default"

// DefaultStepName is assigned to steps declared without a name.
const DefaultStepName = "Unnamed step"

// Project is a loaded pipeline document.
type Project struct {
	// Path is the file the project was read from, empty for in-memory documents.
	Path     string
	Services []Service `validate:"dive"`
	Targets  []Target  `validate:"dive"`
}

// Service is a docker-compose service declared alongside the targets.
type Service struct {
	Name string `validate:"required"`
	Spec Spec
}

// Target is a named unit of work with dependencies and ordered steps.
type Target struct {
	Name         string   `validate:"required,target_name"`
	Dependencies []string `validate:"dive,required"`
	Steps        []Step   `validate:"dive"`
}

// Step is one typed action within a target. Type selects the runner.
type Step struct {
	Name string `validate:"required"`
	Type string `validate:"required"`
	Spec Spec
}

// NewStep builds a step, defaulting the name and guaranteeing a non-nil spec.
func NewStep(name, stepType string, spec Spec) Step {
	if name == "" {
		name = DefaultStepName
	}
	if spec == nil {
		spec = Spec{}
	}
	return Step{Name: name, Type: stepType, Spec: spec}
}

// Parameters carries the per-invocation settings chosen on the command line.
type Parameters struct {
	// DataConnection is the pipeline file path. Compose runners default to it.
	DataConnection string
	// Targets requested by the caller; empty means DefaultTarget.
	Targets   []string
	Verbosity int
}

// RequestedTargets returns the targets to build, applying the default.
func (p Parameters) RequestedTargets() []string {
	if len(p.Targets) == 0 {
		return []string{DefaultTarget}
	}
	return append([]string(nil), p.Targets...)
}

// Target looks a target up by name.
func (p *Project) Target(name string) (Target, bool) {
	if p == nil {
		return Target{}, false
	}
	for _, target := range p.Targets {
		if target.Name == name {
			return target, true
		}
	}
	return Target{}, false
}

// TargetNames lists target names in declaration order.
func (p *Project) TargetNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Targets))
	for _, target := range p.Targets {
		names = append(names, target.Name)
	}
	return names
}

// Service looks a service up by name.
func (p *Project) Service(name string) (Service, bool) {
	if p == nil {
		return Service{}, false
	}
	for _, service := range p.Services {
		if service.Name == name {
			return service, true
		}
	}
	return Service{}, false
}
