package config

import (
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.DryRun || d.AddMetadata {
		t.Fatalf("expected dry-run/add-metadata off by default, got %+v", d)
	}
	if d.CommitInterval != 10000 || d.MaxProcesses != 100 {
		t.Fatalf("unexpected default knobs: %+v", d)
	}
}

func TestLoadYAMLMissingFileIsNotError(t *testing.T) {
	opts, err := LoadYAML(Defaults(), filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if opts != Defaults() {
		t.Fatalf("expected defaults unchanged, got %+v", opts)
	}
}

func TestLoadYAMLEmptyPathIsNotError(t *testing.T) {
	opts, err := LoadYAML(Defaults(), "")
	if err != nil {
		t.Fatal(err)
	}
	if opts != Defaults() {
		t.Fatalf("expected defaults unchanged, got %+v", opts)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svn2git.yaml")
	content := "dry-run: true\ncommit-interval: 500\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := LoadYAML(Defaults(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.DryRun {
		t.Fatalf("expected dry-run true, got %+v", opts)
	}
	if opts.CommitInterval != 500 {
		t.Fatalf("expected commit-interval 500, got %+v", opts)
	}
	if opts.MaxProcesses != 100 {
		t.Fatalf("expected untouched max-processes to keep its default, got %+v", opts)
	}
}

func TestLoadLayersYAMLThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svn2git.yaml")
	if err := os.WriteFile(path, []byte("max-processes: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := Load(path, []string{"--add-metadata", "--commit-interval=42"})
	if err != nil {
		t.Fatal(err)
	}
	if !opts.AddMetadata {
		t.Fatalf("expected the flag to win, got %+v", opts)
	}
	if opts.CommitInterval != 42 {
		t.Fatalf("expected the flag to win, got %+v", opts)
	}
	if opts.MaxProcesses != 7 {
		t.Fatalf("expected the YAML value to survive when no flag overrides it, got %+v", opts)
	}
}

func TestBindFlagsMergeLeavesUnchangedKnobsAtBase(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	merge := BindFlags(fs, Defaults())
	if err := fs.Parse([]string{"--dry-run"}); err != nil {
		t.Fatal(err)
	}

	base := Options{DryRun: false, AddMetadata: true, CommitInterval: 7, MaxProcesses: 3}
	out := merge(base)
	if !out.DryRun {
		t.Fatalf("expected the explicitly passed flag to win, got %+v", out)
	}
	if !out.AddMetadata || out.CommitInterval != 7 || out.MaxProcesses != 3 {
		t.Fatalf("expected untouched knobs to keep the base's values, got %+v", out)
	}
}

// TestBindFlagsOnASharedFlagSet mirrors how the driver registers its own
// flags alongside the four config knobs on one FlagSet and parses once.
func TestBindFlagsOnASharedFlagSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	yamlPath := fs.String("config", "", "")
	merge := BindFlags(fs, Defaults())

	if err := fs.Parse([]string{"--config=svn2git.yaml", "--max-processes=9"}); err != nil {
		t.Fatal(err)
	}
	assertStringEqual(t, *yamlPath, "svn2git.yaml")

	out := merge(Defaults())
	if out.MaxProcesses != 9 {
		t.Fatalf("expected max-processes from the shared FlagSet, got %+v", out)
	}
}

func assertStringEqual(t *testing.T, see, expect string) {
	t.Helper()
	if see != expect {
		t.Fatalf("expected %q, saw %q", expect, see)
	}
}

func TestLoadWithNoYAMLOrFlagsReturnsDefaults(t *testing.T) {
	opts, err := Load("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts != Defaults() {
		t.Fatalf("expected defaults unchanged, got %+v", opts)
	}
}
