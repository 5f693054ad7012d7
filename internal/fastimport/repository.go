// Package fastimport is the repository output engine: the mark allocator
// and branch bookkeeping that turn SVN revisions into a correctly parented
// Git commit DAG, and the fast-import protocol driver that serializes them
// into one or more `git fast-import` child processes.
package fastimport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/emirpasic/gods/sets/linkedhashset"
	shellquote "github.com/kballard/go-shellquote"

	"github.com/humbled/svn2git/internal/config"
	"github.com/humbled/svn2git/internal/xlog"
)

// Repository is the public capability surface of the engine.
// FastImportRepository and PrefixingRepository are its two implementations.
type Repository interface {
	Name() string
	SetupIncremental(cutoff int) (int, int, error)
	RestoreLog() error
	CreateBranch(branchName string, revnum int, branchFrom string, branchRev int) error
	DeleteBranch(branchName string, revnum int) error
	NewTransaction(branchName, svnprefix string, revnum int) Transaction
	CreateAnnotatedTag(ref, svnprefix string, revnum int, author string, dt uint32, log string)
	FinalizeTags() error
	Close() error
}

// annotatedTag is the late-bound tag record. Identity is the
// tag's short name; later writes overwrite prior values silently, but the
// registry remembers whether this is the first write for the "creating"
// vs. "re-creating" announcement.
type annotatedTag struct {
	supportingRef string
	svnprefix     string
	author        string
	log           string
	dt            uint32
	revnum        int
}

// FastImportRepository drives one `git fast-import` child for one named
// bare repository, maintaining its branch ledger and mark counters.
type FastImportRepository struct {
	name string
	dir  string
	opts config.Options
	cache *ProcessCache

	branches map[string]*branch

	annotatedTags map[string]*annotatedTag
	tagOrder      []string // first-seen order, for a deterministic finalizeTags

	commitCount             int
	outstandingTransactions int

	lastCommitMark int // ascends from 0
	nextFileMark   int // descends from MaxMark, reset to MaxMark at outstandingTransactions==0

	processStarted bool
	cmd            *exec.Cmd
	stdinRaw       io.WriteCloser
	stdin          *bufio.Writer
	logFile        *os.File
}

// NewFastImportRepository constructs a repository named name, rooted at
// dir (normally "./"+name), sharing cache with every other
// repository the driver constructs this run.
func NewFastImportRepository(name string, opts config.Options, cache *ProcessCache) *FastImportRepository {
	r := &FastImportRepository{
		name:          name,
		dir:           name,
		opts:          opts,
		cache:         cache,
		branches:      make(map[string]*branch),
		annotatedTags: make(map[string]*annotatedTag),
		nextFileMark:  MaxMark,
	}
	// the default branch exists from the start of the run
	r.branchOf("master").created = 1
	return r
}

// Name returns the repository's identifying name.
func (r *FastImportRepository) Name() string { return r.name }

func (r *FastImportRepository) branchOf(name string) *branch {
	b, ok := r.branches[name]
	if !ok {
		b = &branch{}
		r.branches[name] = b
	}
	return b
}

func marksFileNameFor(name string) string { return marksFileName(name) }
func logFileName(name string) string      { return "log-" + strings.ReplaceAll(name, "/", "_") }

// ensureInitialized runs `git --bare init` and seeds an empty marks file
// the first time this repository's directory doesn't yet exist. Skipped
// entirely in dry-run.
func (r *FastImportRepository) ensureInitialized() error {
	if r.opts.DryRun {
		return nil
	}
	if st, err := os.Stat(r.dir); err == nil && st.IsDir() {
		return nil
	}
	xlog.Logit(r.name, "creating new repository")
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", r.dir, err)
	}
	init := exec.Command("git", "--bare", "init")
	init.Dir = r.dir
	if err := init.Run(); err != nil {
		return fmt.Errorf("git --bare init in %s: %w", r.dir, err)
	}
	marks, err := os.Create(r.dir + "/" + marksFileNameFor(r.name))
	if err != nil {
		return fmt.Errorf("seeding marks file: %w", err)
	}
	return marks.Close()
}

// startFastImport spawns the child, reusing the live one if there already
// is one. A repository the process cache evicted (or that Close stopped
// cleanly) always has processStarted reset to false by closeFastImport
// first, so a later operation restarts it transparently; processStarted
// still true with no live cmd means the previous child crashed or was
// killed without going through closeFastImport, which is Fatal-to-process
// since its in-memory marks are gone. In dry-run mode the child is cat
// instead of git.
func (r *FastImportRepository) startFastImport() {
	if r.cmd != nil {
		return
	}
	if r.processStarted {
		panic(Throw("process", "git-fast-import for %s has been started once and crashed?", r.name))
	}
	if err := r.ensureInitialized(); err != nil {
		panic(Throw("process", "%v", err))
	}
	r.processStarted = true

	marksFile := marksFileNameFor(r.name)
	var cmd *exec.Cmd
	var argv []string
	if r.opts.DryRun {
		argv = []string{"cat"}
		cmd = exec.Command(argv[0])
	} else {
		argv = []string{"git", "fast-import",
			"--import-marks=" + marksFile,
			"--export-marks=" + marksFile,
			"--force"}
		cmd = exec.Command(argv[0], argv[1:]...)
		// dry-run never creates r.dir, so only git runs inside it
		cmd.Dir = r.dir
	}

	logFile, err := os.OpenFile(logFileName(r.name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// the log file is captured relative to the driver's own working
		// directory, not the repository's; the child's cwd is only used
		// to resolve the marks file and the bare repository itself.
		panic(Throw("process", "opening log for %s: %v", r.name, err))
	}
	r.logFile = logFile
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	stdin, err := cmd.StdinPipe()
	if err != nil {
		panic(Throw("process", "connecting stdin for %s: %v", r.name, err))
	}
	r.stdinRaw = stdin
	r.stdin = bufio.NewWriter(stdin)

	if err := cmd.Start(); err != nil {
		panic(Throw("process", "starting fast-import for %s: %v", r.name, err))
	}
	r.cmd = cmd

	xlog.Logit(r.name, "spawned %s", shellquote.Join(argv...))
	r.reloadBranches()
}

// reloadBranches re-anchors a freshly started child to every branch's
// existing tip mark, so that a restarted run picks up
// exactly where the marks file left off.
func (r *FastImportRepository) reloadBranches() {
	for name, b := range r.branches {
		if b.tipMark() == 0 {
			continue
		}
		ref := refName(name)
		r.writeString("reset " + ref + "\nfrom :" + itoa(b.tipMark()) + "\n\n" +
			"progress Branch " + ref + " reloaded\n")
	}
}

// blobWriter exposes the raw wire writer so a Transaction can stream a
// blob's content immediately after its "data <length>" header, without
// going through writeString's string-at-a-time interface.
func (r *FastImportRepository) blobWriter() io.Writer { return r.stdin }

func (r *FastImportRepository) writeString(s string) {
	if _, err := io.WriteString(r.stdin, s); err != nil {
		panic(Throw("process", "write to fast-import for %s failed: %v", r.name, err))
	}
}

// flush drains the buffered writer to the child's stdin: any write
// failure here is fatal-to-process, same as a failed writeString.
func (r *FastImportRepository) flush() {
	if err := r.stdin.Flush(); err != nil {
		panic(Throw("process", "flush to fast-import for %s failed: %v", r.name, err))
	}
}

// closeFastImport closes a running child: checkpoint, flush, close the
// write side, wait, and escalate to a forced kill after a brief grace
// period if the child doesn't exit promptly.
func (r *FastImportRepository) closeFastImport() {
	if r.cmd == nil {
		return
	}
	r.writeString("checkpoint\n")
	r.flush()
	r.stdinRaw.Close()

	done := make(chan error, 1)
	go func() { done <- r.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		_ = r.cmd.Process.Kill()
		xlog.Warn(r.name, "git-fast-import did not exit promptly, killed it")
		<-done
	}
	if r.logFile != nil {
		r.logFile.Close()
	}
	r.cmd = nil
	r.processStarted = false
	r.cache.remove(r)
}

// Close flushes and stops the child cleanly: checkpoint, close write
// channel, wait.
func (r *FastImportRepository) Close() error {
	if r.outstandingTransactions != 0 {
		return Throw("process", "repository %s destroyed with %d outstanding transactions", r.name, r.outstandingTransactions)
	}
	r.closeFastImport()
	return nil
}

// resetBranch backs up the prior tip under refs/backups/ if this branch
// already existed under a different revision, records the new
// (revnum, mark) in the ledger, and emits the reset/progress pair.
func (r *FastImportRepository) resetBranch(branchName string, revnum, mark int, resetTo, comment string) error {
	ref := refName(branchName)
	b := r.branchOf(branchName)

	if b.created != 0 && b.created != revnum && b.tipMark() != 0 {
		// ref always starts with "refs/" (refName prepends it); keep
		// everything after "refs" so "refs/heads/foo" backs up to
		// "refs/backups/r<rev>/heads/foo".
		backupRef := "refs/backups/r" + itoa(revnum) + ref[len("refs"):]
		xlog.Warn(r.name, "backing up branch %s to %s", branchName, backupRef)
		r.writeString("reset " + backupRef + "\nfrom " + ref + "\n\n")
	}

	b.created = revnum
	b.record(revnum, mark)

	r.writeString("reset " + ref + "\nfrom " + resetTo + "\n\n" +
		"progress SVN r" + itoa(revnum) + " branch " + branchName + " = :" + itoa(mark) +
		" # " + comment + "\n\n")
	r.flush()
	return nil
}

// CreateBranch resolves branchFrom's ancestor mark at branchRev and
// branches branchName off it. A mark of -1 (branchFrom unknown) fails the
// whole operation; a mark of 0 falls back to using the source branch's
// textual ref, with a warning, since no commits exist yet.
func (r *FastImportRepository) CreateBranch(branchName string, revnum int, branchFrom string, branchRev int) error {
	r.startFastImport()

	desc := []byte("from branch " + branchFrom)
	mark := markFrom(r.branches[branchFrom], branchRev, &desc)

	if mark == -1 {
		xlog.Croak(r.name, "%s is branching from branch %s but the latter doesn't exist", branchName, branchFrom)
		return Throw("operation", "%s: unknown source branch %s", branchName, branchFrom)
	}

	fromRef := ":" + itoa(mark)
	if mark == 0 {
		xlog.Warn(r.name, "%s is branching but no exported commits exist on %s; creating an empty branch", branchName, branchFrom)
		fromRef = refName(branchFrom)
		desc = append(desc, ", deleted/unknown"...)
	}

	xlog.Logit(r.name, "creating branch %s from %s (%d %s)", branchName, branchFrom, branchRev, string(desc))
	return r.resetBranch(branchName, revnum, mark, fromRef, string(desc))
}

// DeleteBranch resets branchName to the null SHA, marking it deleted.
func (r *FastImportRepository) DeleteBranch(branchName string, revnum int) error {
	r.startFastImport()
	return r.resetBranch(branchName, revnum, 0, nullSHA, "delete")
}

// NewTransaction opens a scoped builder for one commit on branchName. If
// branchName is not yet known to this repository, a warning is logged and
// the branch is created automatically on commit.
func (r *FastImportRepository) NewTransaction(branchName, svnprefix string, revnum int) Transaction {
	r.startFastImport()
	if _, known := r.branches[branchName]; !known {
		xlog.Warn(r.name, "%s is not a known branch; it will be created automatically", branchName)
	}

	r.commitCount++
	interval := r.opts.CommitInterval
	if interval <= 0 {
		interval = 10000
	}
	if r.commitCount%interval == 0 {
		r.writeString("checkpoint\n")
		xlog.Logit(r.name, "checkpoint, marks file truncated")
	}
	r.outstandingTransactions++

	return &fastImportTransaction{
		repo:      r,
		branch:    branchName,
		svnprefix: svnprefix,
		revnum:    revnum,
		merges:    linkedhashset.New(),
	}
}

// forgetTransaction is called when a transaction is destroyed, whether or
// not it ever committed; once the last outstanding transaction is gone,
// the file-mark counter resets.
func (r *FastImportRepository) forgetTransaction() {
	r.outstandingTransactions--
	if r.outstandingTransactions == 0 {
		r.nextFileMark = MaxMark
	}
}

// SetupIncremental reconciles the stored progress log with the marks file
// and returns the revision to resume at, plus the (possibly lowered)
// cutoff.
func (r *FastImportRepository) SetupIncremental(cutoff int) (resumeAt int, newCutoff int, err error) {
	return setupIncremental(r, cutoff)
}

// RestoreLog rolls back an aborted incremental setup.
func (r *FastImportRepository) RestoreLog() error {
	return restoreLog(r.name)
}

// CreateAnnotatedTag stores or overwrites a tag record under its short
// name; announced as "creating" the first time, and
// "re-creating" on every subsequent write.
func (r *FastImportRepository) CreateAnnotatedTag(ref, svnprefix string, revnum int, author string, dt uint32, log string) {
	tagName := strings.TrimPrefix(ref, "refs/tags/")

	if _, exists := r.annotatedTags[tagName]; !exists {
		xlog.Logit(r.name, "creating annotated tag %s (%s)", tagName, ref)
		r.tagOrder = append(r.tagOrder, tagName)
	} else {
		xlog.Logit(r.name, "re-creating annotated tag %s", tagName)
	}

	r.annotatedTags[tagName] = &annotatedTag{
		supportingRef: ref,
		svnprefix:     svnprefix,
		author:        author,
		log:           log,
		dt:            dt,
		revnum:        revnum,
	}
}

// FinalizeTags emits every registered tag in one batch,
// starting the fast-import child first if it hasn't been already.
func (r *FastImportRepository) FinalizeTags() error {
	if len(r.tagOrder) == 0 {
		return nil
	}
	r.startFastImport()

	for _, tagName := range r.tagOrder {
		tag := r.annotatedTags[tagName]
		message := tagMessage(tag.log, r.opts.AddMetadata, tag.svnprefix, tag.revnum)
		ref := refName(tag.supportingRef)

		xlog.Logit(r.name, "creating annotated tag %s from ref %s", tagName, ref)
		r.writeString("progress Creating annotated tag " + tagName + " from ref " + ref + "\n" +
			"tag " + tagName + "\n" +
			"from " + ref + "\n" +
			"tagger " + tag.author + " " + itoa(int(tag.dt)) + " -0000\n" +
			"data " + itoa(len(message)) + "\n")
		r.writeString(message)
		r.writeString("\n")
	}
	r.flush()
	return nil
}

// tagMessage and commitMessage share the same trailing-newline-plus-
// optional-add-metadata-suffix rule.
func tagMessage(log string, addMetadata bool, svnprefix string, revnum int) string {
	return commitMessage(log, addMetadata, svnprefix, revnum)
}

func commitMessage(log string, addMetadata bool, svnprefix string, revnum int) string {
	msg := log
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	if addMetadata {
		msg += fmt.Sprintf("\nsvn path=%s; revision=%d\n", svnprefix, revnum)
	}
	return msg
}
