// svn2git-import drives the repository output engine against a stream of
// decomposed SVN-revision operations, one JSON object per line on stdin.
// Producing that stream (walking SVN history, applying the rules DSL,
// deciding what goes to which repository) is the job of an external
// collaborator; this binary only wires the engine itself together.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/humbled/svn2git/internal/config"
	"github.com/humbled/svn2git/internal/fastimport"
	"github.com/humbled/svn2git/internal/xlog"
)

// op is one line of the input stream: a tagged union over every Repository
// and Transaction method names. Unrecognized/omitted fields are
// simply zero for ops that don't use them.
type op struct {
	Op string `json:"op"`

	Repo      string `json:"repo"`
	ForwardTo string `json:"forwardTo,omitempty"`
	Prefix    string `json:"prefix,omitempty"`

	Branch     string `json:"branch,omitempty"`
	Revnum     int    `json:"revnum,omitempty"`
	BranchFrom string `json:"branchFrom,omitempty"`
	BranchRev  int    `json:"branchRev,omitempty"`

	Svnprefix string `json:"svnprefix,omitempty"`
	Author    string `json:"author,omitempty"`
	DateTime  uint32 `json:"dateTime,omitempty"`
	Log       string `json:"log,omitempty"`

	Path    string `json:"path,omitempty"`
	Mode    int    `json:"mode,omitempty"`
	Length  int64  `json:"length,omitempty"`
	Content string `json:"content,omitempty"`

	Ref string `json:"ref,omitempty"`

	Cutoff int `json:"cutoff,omitempty"`
}

func main() {
	fs := flag.NewFlagSet("svn2git-import", flag.ExitOnError)
	yamlPath := fs.String("config", "", "optional YAML defaults file")
	debug := fs.Bool("debug", false, "enable verbose engine tracing")
	logPath := fs.String("log-file", "", "write engine logging here instead of stderr")
	merge := config.BindFlags(fs, config.Defaults())
	fs.Parse(os.Args[1:])

	yamlOpts, err := config.LoadYAML(config.Defaults(), *yamlPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "svn2git-import:", err)
		os.Exit(1)
	}
	opts := merge(yamlOpts)

	xlog.SetDebug(*debug)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "svn2git-import:", err)
			os.Exit(1)
		}
		defer f.Close()
		xlog.SetOutput(f)
	}

	d := &driver{
		opts:     opts,
		cache:    fastimport.NewProcessCache(opts.MaxProcesses),
		registry: fastimport.Registry{},
		txns:     map[string]fastimport.Transaction{},
	}

	exitCode := 0
	func() {
		defer func() {
			r := recover()
			if fault := fastimport.CatchAny([]string{"process", "protocol"}, r); fault != nil {
				fmt.Fprintln(os.Stderr, "svn2git-import: fatal:", fault.Error())
				exitCode = 1
			}
		}()
		if err := d.run(os.Stdin); err != nil {
			fmt.Fprintln(os.Stderr, "svn2git-import:", err)
			exitCode = 1
		}
	}()

	for _, repo := range d.registry {
		if err := repo.FinalizeTags(); err != nil {
			fmt.Fprintln(os.Stderr, "svn2git-import: finalizing tags:", err)
			exitCode = 1
		}
	}
	for name, repo := range d.registry {
		if err := repo.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "svn2git-import: closing", name, ":", err)
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}

// driver holds the one registry and process cache shared by every
// repository this run constructs, plus the one open transaction per
// repository name the op stream may have in flight at a time.
type driver struct {
	opts     config.Options
	cache    *fastimport.ProcessCache
	registry fastimport.Registry
	txns     map[string]fastimport.Transaction
}

func (d *driver) run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var o op
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			return fmt.Errorf("parsing op line %q: %w", line, err)
		}
		if err := d.apply(o); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (d *driver) apply(o op) error {
	switch o.Op {
	case "open-repository":
		repo, err := fastimport.NewRepository(d.registry, d.cache, d.opts, o.Repo, o.ForwardTo, o.Prefix)
		if err != nil {
			return err
		}
		d.registry[o.Repo] = repo
		resumeAt, cutoff, err := repo.SetupIncremental(o.Cutoff)
		if err != nil {
			return fmt.Errorf("setting up incremental resume for %s: %w", o.Repo, err)
		}
		xlog.Logit(o.Repo, "resuming at r%d, cutoff r%d", resumeAt, cutoff)
		return nil

	case "create-branch":
		return d.repo(o.Repo).CreateBranch(o.Branch, o.Revnum, o.BranchFrom, o.BranchRev)

	case "delete-branch":
		return d.repo(o.Repo).DeleteBranch(o.Branch, o.Revnum)

	case "begin-transaction":
		d.txns[o.Repo] = d.repo(o.Repo).NewTransaction(o.Branch, o.Svnprefix, o.Revnum)
		return nil

	case "set-author":
		d.txn(o.Repo).SetAuthor(o.Author)
		return nil
	case "set-datetime":
		d.txn(o.Repo).SetDateTime(o.DateTime)
		return nil
	case "set-log":
		d.txn(o.Repo).SetLog(o.Log)
		return nil
	case "note-copy-from-branch":
		d.txn(o.Repo).NoteCopyFromBranch(o.BranchFrom, o.BranchRev)
		return nil
	case "delete-file":
		d.txn(o.Repo).DeleteFile(o.Path)
		return nil
	case "add-file":
		w, err := d.txn(o.Repo).AddFile(o.Path, o.Mode, o.Length)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, o.Content)
		return err
	case "commit":
		txn := d.txn(o.Repo)
		delete(d.txns, o.Repo)
		return txn.Commit()
	case "discard":
		txn := d.txn(o.Repo)
		delete(d.txns, o.Repo)
		txn.Discard()
		return nil

	case "create-annotated-tag":
		d.repo(o.Repo).CreateAnnotatedTag(o.Ref, o.Svnprefix, o.Revnum, o.Author, o.DateTime, o.Log)
		return nil

	case "restore-log":
		return d.repo(o.Repo).RestoreLog()

	default:
		return fmt.Errorf("unrecognized op %q", o.Op)
	}
}

func (d *driver) repo(name string) fastimport.Repository {
	repo, ok := d.registry[name]
	if !ok {
		panic(fastimport.Throw("protocol", "op stream referenced unopened repository %q", name))
	}
	return repo
}

func (d *driver) txn(name string) fastimport.Transaction {
	txn, ok := d.txns[name]
	if !ok {
		panic(fastimport.Throw("protocol", "op stream referenced repository %q with no open transaction", name))
	}
	return txn
}
