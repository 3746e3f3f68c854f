// Package planfile loads chain plans from YAML files.
//
// Precedence, highest first: explicitly set flags, QUANTUMLINK_PLAN_*
// environment variables, the plan file, defaults. Relative paths written in
// the plan file resolve against the file's directory; paths given through
// flags or the environment resolve against the working directory.
package planfile

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/quantumlink/quantumlink/internal/query"
)

const EnvPrefix = "QUANTUMLINK_PLAN_"

var ErrNoPlanFile = errors.New("plan file is required")

type Output struct {
	Path   string `koanf:"path"`
	Format string `koanf:"format"`
}

type Plan struct {
	Master     string           `koanf:"master"`
	References []query.JoinSpec `koanf:"references"`
	Output     Output           `koanf:"output"`

	// Source is the absolute path of the file the plan was read from.
	Source string `koanf:"-"`
}

// Chain returns the validated chain plan.
func (p Plan) Chain() (query.ChainPlan, error) {
	return query.NewChainPlan(p.Master, p.References...)
}

func (p Plan) OutputFormat() (query.OutputFormat, error) {
	return query.ParseOutputFormat(p.Output.Format)
}

// flagKeys maps CLI flag names onto plan keys. Other flags are ignored.
var flagKeys = map[string]string{
	"master": "master",
	"output": "output.path",
	"format": "output.format",
}

// Load reads the plan at path and applies environment and flag overrides.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Plan, error) {
	if strings.TrimSpace(path) == "" {
		return Plan{}, ErrNoPlanFile
	}
	source, err := filepath.Abs(path)
	if err != nil {
		return Plan{}, fmt.Errorf("resolve plan path: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"output.format": string(query.OutputCSV),
	}, "."), nil); err != nil {
		return Plan{}, fmt.Errorf("load plan defaults: %w", err)
	}
	if err := k.Load(file.Provider(source), yaml.Parser()); err != nil {
		return Plan{}, fmt.Errorf("read plan file %s: %w", path, err)
	}

	var plan Plan
	if err := k.Unmarshal("", &plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan file %s: %w", path, err)
	}
	plan.Source = source
	baseDir := filepath.Dir(source)
	plan.Master = resolveRelative(plan.Master, baseDir)
	for i := range plan.References {
		plan.References[i].Path = resolveRelative(plan.References[i].Path, baseDir)
	}
	plan.Output.Path = resolveRelative(plan.Output.Path, baseDir)

	overrides, err := loadOverrides(flags)
	if err != nil {
		return Plan{}, err
	}
	if overrides.Exists("master") {
		if plan.Master, err = absolute(overrides.String("master")); err != nil {
			return Plan{}, err
		}
	}
	if overrides.Exists("output.path") {
		if plan.Output.Path, err = absolute(overrides.String("output.path")); err != nil {
			return Plan{}, err
		}
	}
	if overrides.Exists("output.format") {
		plan.Output.Format = overrides.String("output.format")
	}
	plan.Output.Format = strings.ToLower(strings.TrimSpace(plan.Output.Format))

	if _, err := plan.Chain(); err != nil {
		return Plan{}, fmt.Errorf("validate plan %s: %w", path, err)
	}
	if _, err := plan.OutputFormat(); err != nil {
		return Plan{}, fmt.Errorf("validate plan %s: %w", path, err)
	}
	return plan, nil
}

func loadOverrides(flags *pflag.FlagSet) (*koanf.Koanf, error) {
	k := koanf.New(".")
	// QUANTUMLINK_PLAN_OUTPUT_FORMAT -> output.format
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load plan env overrides: %w", err)
	}

	if flags == nil {
		return k, nil
	}
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}), nil); err != nil {
		return nil, fmt.Errorf("load plan flag overrides: %w", err)
	}
	return k, nil
}

func resolveRelative(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func absolute(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}
