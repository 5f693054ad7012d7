// Package config assembles the four knobs the engine consumes from its
// collaborator environment: dry-run, add-metadata, commit-interval, and
// (since a real operator has to bound fan-out) the process cache ceiling.
// It is not a rules-DSL parser or a shell; both of those stay out of
// scope.
package config

import (
	"fmt"
	"io/ioutil"
	"os"

	flag "github.com/spf13/pflag"
	yaml "gopkg.in/yaml.v2"
)

// Options holds the engine-wide knobs.
type Options struct {
	DryRun         bool `yaml:"dry-run"`
	AddMetadata    bool `yaml:"add-metadata"`
	CommitInterval int  `yaml:"commit-interval"`
	MaxProcesses   int  `yaml:"max-processes"`
}

// Defaults returns the compiled-in defaults, the lowest-priority layer.
func Defaults() Options {
	return Options{
		DryRun:         false,
		AddMetadata:    false,
		CommitInterval: 10000,
		MaxProcesses:   100,
	}
}

// LoadYAML overlays a defaults file, if present, onto opts. A missing file
// is not an error: the YAML layer is optional.
func LoadYAML(opts Options, path string) (Options, error) {
	if path == "" {
		return opts, nil
	}
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return opts, nil
	}
	if err != nil {
		return opts, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parsing %s: %w", path, err)
	}
	return opts, nil
}

// BindFlags registers the four knobs on fs, seeded with defaults, and
// returns a function that overlays onto a base Options only the flags fs
// actually saw on the command line (per fs.Changed), leaving every
// untouched knob at whatever the base already holds. This lets a caller
// register these flags alongside its own on one FlagSet and still have a
// YAML layer, discovered only after fs.Parse returns, take effect for
// every knob the operator didn't explicitly override.
func BindFlags(fs *flag.FlagSet, defaults Options) func(base Options) Options {
	dryRun := fs.Bool("dry-run", defaults.DryRun, "substitute cat for git fast-import and skip bare-init")
	addMetadata := fs.Bool("add-metadata", defaults.AddMetadata, "append svn path/revision trailer to commit and tag messages")
	commitInterval := fs.Int("commit-interval", defaults.CommitInterval, "commits between fast-import checkpoints")
	maxProcesses := fs.Int("max-processes", defaults.MaxProcesses, "live fast-import children allowed before the LRU evicts one")
	return func(base Options) Options {
		out := base
		if fs.Changed("dry-run") {
			out.DryRun = *dryRun
		}
		if fs.Changed("add-metadata") {
			out.AddMetadata = *addMetadata
		}
		if fs.Changed("commit-interval") {
			out.CommitInterval = *commitInterval
		}
		if fs.Changed("max-processes") {
			out.MaxProcesses = *maxProcesses
		}
		return out
	}
}

// Load layers compiled-in defaults, an optional YAML file, and flags parsed
// from args (GNU-style, e.g. "--dry-run"), in that priority order.
func Load(yamlPath string, args []string) (Options, error) {
	opts, err := LoadYAML(Defaults(), yamlPath)
	if err != nil {
		return opts, err
	}
	fs := flag.NewFlagSet("svn2git", flag.ContinueOnError)
	merge := BindFlags(fs, opts)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return merge(opts), nil
}
