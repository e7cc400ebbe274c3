package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Load reads a pipeline file, picks the decoder from its extension and validates the result.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, runcierrors.NewParseError(path, 0, err)
	}

	var project *Project
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		project, err = ParseHCL(path, data)
	} else {
		project, err = Parse(path, data)
	}
	if err != nil {
		return nil, err
	}

	if err := ValidateProject(project); err != nil {
		return nil, err
	}
	return project, nil
}

type yamlDocument struct {
	Services yaml.Node `yaml:"services"`
	Targets  yaml.Node `yaml:"targets"`
	XTargets yaml.Node `yaml:"x-targets"`
}

type yamlTarget struct {
	Dependencies any         `yaml:"dependencies"`
	Steps        []yaml.Node `yaml:"steps"`
}

// Parse decodes a YAML pipeline document. Unknown top-level keys are ignored so
// that a docker-compose file carrying `x-targets` can double as the pipeline.
func Parse(path string, data []byte) (*Project, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, runcierrors.NewParseError(path, extractLine(err), err)
	}

	project := &Project{Path: path}

	services, err := decodeServices(path, &doc.Services)
	if err != nil {
		return nil, err
	}
	project.Services = services

	targetsNode := &doc.Targets
	if isAbsent(targetsNode) {
		targetsNode = &doc.XTargets
	}
	if isAbsent(targetsNode) {
		return nil, runcierrors.NewParseError(path, 0, fmt.Errorf("no targets declared: expected a `targets` or `x-targets` mapping"))
	}

	targets, err := decodeTargets(path, targetsNode)
	if err != nil {
		return nil, err
	}
	project.Targets = targets

	return project, nil
}

func isAbsent(node *yaml.Node) bool {
	return node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

func decodeServices(path string, node *yaml.Node) ([]Service, error) {
	if isAbsent(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, runcierrors.NewParseError(path, node.Line, fmt.Errorf("services must be a mapping"))
	}

	services := make([]Service, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var raw any
		if err := value.Decode(&raw); err != nil {
			return nil, runcierrors.NewParseError(path, value.Line, err)
		}
		services = append(services, Service{Name: key.Value, Spec: specFromValue(raw)})
	}
	return services, nil
}

func decodeTargets(path string, node *yaml.Node) ([]Target, error) {
	if node.Kind != yaml.MappingNode {
		return nil, runcierrors.NewParseError(path, node.Line, fmt.Errorf("targets must be a mapping"))
	}

	targets := make([]Target, 0, len(node.Content)/2)
	seen := make(map[string]int, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if line, dup := seen[key.Value]; dup {
			return nil, runcierrors.NewParseError(path, key.Line, fmt.Errorf("target %q already defined at line %d", key.Value, line))
		}
		seen[key.Value] = key.Line

		target, err := decodeTarget(path, key.Value, value)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func decodeTarget(path, name string, node *yaml.Node) (Target, error) {
	target := Target{Name: name, Dependencies: []string{}, Steps: []Step{}}
	if isAbsent(node) {
		return target, nil
	}
	if node.Kind != yaml.MappingNode {
		return Target{}, runcierrors.NewParseError(path, node.Line, fmt.Errorf("target %q must be a mapping", name))
	}

	var raw yamlTarget
	if err := node.Decode(&raw); err != nil {
		return Target{}, runcierrors.NewParseError(path, extractLine(err), err)
	}

	deps, err := decodeDependencies(raw.Dependencies)
	if err != nil {
		return Target{}, runcierrors.NewParseError(path, node.Line, fmt.Errorf("target %q: %w", name, err))
	}
	target.Dependencies = deps

	for _, stepNode := range raw.Steps {
		stepNode := stepNode
		step, err := decodeStep(path, &stepNode)
		if err != nil {
			return Target{}, err
		}
		target.Steps = append(target.Steps, step)
	}
	return target, nil
}

// decodeDependencies accepts a YAML list or a whitespace-separated string.
func decodeDependencies(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case string:
		return strings.Fields(v), nil
	case []any:
		deps := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("dependency %v is not a target name", item)
			}
			deps = append(deps, name)
		}
		return deps, nil
	default:
		return nil, fmt.Errorf("dependencies must be a list or a string, got %T", raw)
	}
}

// decodeStep reads `{name: ..., <type>: <spec>}`; exactly one key besides name is allowed.
func decodeStep(path string, node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return Step{}, runcierrors.NewParseError(path, node.Line, fmt.Errorf("step must be a mapping"))
	}

	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return Step{}, runcierrors.NewParseError(path, node.Line, err)
	}

	name := DefaultStepName
	if value, ok := raw["name"]; ok {
		if value != nil {
			name = fmt.Sprint(value)
		}
		delete(raw, "name")
	}

	if len(raw) != 1 {
		return Step{}, runcierrors.NewParseError(path, node.Line, fmt.Errorf("can't find key for step %q", name))
	}

	var step Step
	for stepType, value := range raw {
		step = NewStep(name, stepType, specFromValue(value))
	}
	return step, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
