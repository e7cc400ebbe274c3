package config

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// ParseHCL decodes the HCL flavour of a pipeline:
//
//	service "db" { image = "postgres:16" }
//
//	target "test" {
//	  dependencies = ["build"]
//	  step "unit" {
//	    command { run = "go test ./..." }
//	  }
//	  step "pull" {
//	    docker-pull = "alpine redis"
//	  }
//	}
//
// A step holds exactly one item: a block named after the step type whose
// attributes form the spec, or an attribute whose value is the scalar shorthand.
func ParseHCL(path string, data []byte) (*Project, error) {
	file, diags := hclsyntax.ParseConfig(data, path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, diagnosticsError(path, diags)
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, runcierrors.NewParseError(path, 0, fmt.Errorf("unexpected HCL body type %T", file.Body))
	}

	if names := sortedAttributeNames(body); len(names) > 0 {
		attr := body.Attributes[names[0]]
		return nil, runcierrors.NewParseError(path, attr.SrcRange.Start.Line, fmt.Errorf("unexpected top-level attribute %q", names[0]))
	}

	project := &Project{Path: path, Targets: []Target{}}
	for _, block := range body.Blocks {
		line := block.TypeRange.Start.Line
		if len(block.Labels) != 1 {
			return nil, runcierrors.NewParseError(path, line, fmt.Errorf("%s block needs exactly one name label", block.Type))
		}
		name := block.Labels[0]

		switch block.Type {
		case "service":
			spec, err := attributesToSpec(path, block.Body)
			if err != nil {
				return nil, err
			}
			project.Services = append(project.Services, Service{Name: name, Spec: spec})
		case "target":
			target, err := decodeHCLTarget(path, name, block.Body)
			if err != nil {
				return nil, err
			}
			project.Targets = append(project.Targets, target)
		default:
			return nil, runcierrors.NewParseError(path, line, fmt.Errorf("unexpected block type %q", block.Type))
		}
	}

	return project, nil
}

func decodeHCLTarget(path, name string, body *hclsyntax.Body) (Target, error) {
	target := Target{Name: name, Dependencies: []string{}, Steps: []Step{}}

	for _, attrName := range sortedAttributeNames(body) {
		attr := body.Attributes[attrName]
		if attrName != "dependencies" {
			return Target{}, runcierrors.NewParseError(path, attr.SrcRange.Start.Line, fmt.Errorf("target %q: unexpected attribute %q", name, attrName))
		}
		value, err := evaluate(path, attr)
		if err != nil {
			return Target{}, err
		}
		deps, err := decodeDependencies(value)
		if err != nil {
			return Target{}, runcierrors.NewParseError(path, attr.SrcRange.Start.Line, fmt.Errorf("target %q: %w", name, err))
		}
		target.Dependencies = deps
	}

	for _, block := range body.Blocks {
		if block.Type != "step" {
			return Target{}, runcierrors.NewParseError(path, block.TypeRange.Start.Line, fmt.Errorf("target %q: unexpected block %q", name, block.Type))
		}
		step, err := decodeHCLStep(path, block)
		if err != nil {
			return Target{}, err
		}
		target.Steps = append(target.Steps, step)
	}

	return target, nil
}

func decodeHCLStep(path string, block *hclsyntax.Block) (Step, error) {
	line := block.TypeRange.Start.Line
	name := ""
	switch len(block.Labels) {
	case 0:
	case 1:
		name = block.Labels[0]
	default:
		return Step{}, runcierrors.NewParseError(path, line, fmt.Errorf("step block takes at most one label"))
	}

	body := block.Body
	if len(body.Attributes)+len(body.Blocks) != 1 {
		label := name
		if label == "" {
			label = DefaultStepName
		}
		return Step{}, runcierrors.NewParseError(path, line, fmt.Errorf("can't find key for step %q", label))
	}

	if len(body.Blocks) == 1 {
		typed := body.Blocks[0]
		if len(typed.Labels) != 0 {
			return Step{}, runcierrors.NewParseError(path, typed.TypeRange.Start.Line, fmt.Errorf("step type block %q takes no labels", typed.Type))
		}
		spec, err := attributesToSpec(path, typed.Body)
		if err != nil {
			return Step{}, err
		}
		return NewStep(name, typed.Type, spec), nil
	}

	var step Step
	for stepType, attr := range body.Attributes {
		value, err := evaluate(path, attr)
		if err != nil {
			return Step{}, err
		}
		step = NewStep(name, stepType, specFromValue(value))
	}
	return step, nil
}

func attributesToSpec(path string, body *hclsyntax.Body) (Spec, error) {
	if len(body.Blocks) > 0 {
		nested := body.Blocks[0]
		return nil, runcierrors.NewParseError(path, nested.TypeRange.Start.Line, fmt.Errorf("nested block %q is not supported, use an object attribute", nested.Type))
	}

	spec := Spec{}
	for _, name := range sortedAttributeNames(body) {
		value, err := evaluate(path, body.Attributes[name])
		if err != nil {
			return nil, err
		}
		spec[name] = value
	}
	return spec, nil
}

func evaluate(path string, attr *hclsyntax.Attribute) (any, error) {
	value, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, diagnosticsError(path, diags)
	}
	native, err := ctyToNative(value)
	if err != nil {
		return nil, runcierrors.NewParseError(path, attr.SrcRange.Start.Line, fmt.Errorf("attribute %q: %w", attr.Name, err))
	}
	return native, nil
}

// ctyToNative converts an evaluated cty value into the shapes the YAML decoder
// produces: string, int, float64, bool, []any and map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, accuracy := bf.Int64(); accuracy == big.Exact {
				return int(i), nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(v, &b); err != nil {
			return nil, fmt.Errorf("could not convert bool: %w", err)
		}
		return b, nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		items := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			items = append(items, native)
		}
		return items, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

func sortedAttributeNames(body *hclsyntax.Body) []string {
	names := make([]string, 0, len(body.Attributes))
	for name := range body.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func diagnosticsError(path string, diags hcl.Diagnostics) error {
	line := 0
	messages := make([]string, 0, len(diags))
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		if line == 0 && diag.Subject != nil {
			line = diag.Subject.Start.Line
		}
		messages = append(messages, strings.TrimSpace(diag.Summary+"; "+diag.Detail))
	}
	return runcierrors.NewParseError(path, line, fmt.Errorf("%s", strings.Join(messages, "\n")))
}
