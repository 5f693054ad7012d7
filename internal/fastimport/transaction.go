package fastimport

import (
	"io"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/humbled/svn2git/internal/xlog"
)

// Transaction is a scoped builder for one commit:
// populated by zero or more deleteFile/addFile/noteCopyFromBranch calls,
// finalized by exactly one Commit.
type Transaction interface {
	SetAuthor(author string)
	SetDateTime(dt uint32)
	SetLog(log string)
	NoteCopyFromBranch(branchFrom string, branchRev int)
	DeleteFile(path string)
	AddFile(path string, mode int, length int64) (io.Writer, error)
	Commit() error
	// Discard destroys the transaction without committing: used by a
	// caller that abandons a revision partway through, so the repository
	// still sees outstandingTransactions drop to zero and can reset its
	// file-mark counter.
	Discard()
}

// fastImportTransaction is the concrete implementation backing a
// FastImportRepository. It holds a borrowed reference to its owning
// repository: since transactions are strictly shorter-lived than their
// repository and the whole engine runs on one call stream, this needs no
// reference counting.
type fastImportTransaction struct {
	repo      *FastImportRepository
	branch    string
	svnprefix string
	revnum    int

	author   string
	datetime uint32
	log      string

	merges       *linkedhashset.Set // ordered, deduplicated ancestor marks
	deletedFiles []string
	modifiedFiles strings.Builder

	done bool
}

func (t *fastImportTransaction) SetAuthor(author string) { t.author = author }
func (t *fastImportTransaction) SetDateTime(dt uint32)   { t.datetime = dt }
func (t *fastImportTransaction) SetLog(log string)       { t.log = log }

// NoteCopyFromBranch records an inferred merge point from branchFrom at
// branchRev. A self-merge is rejected with a warning; an
// unresolvable or future source branch is also a warning, not a failure,
// since the caller is expected to proceed assuming the files exist.
func (t *fastImportTransaction) NoteCopyFromBranch(branchFrom string, branchRev int) {
	if branchFrom == t.branch {
		xlog.Warn(t.repo.name, "cannot merge branch %s into itself", t.branch)
		return
	}

	mark := markFrom(t.repo.branches[branchFrom], branchRev, nil)
	switch {
	case mark == -1:
		xlog.Warn(t.repo.name, "%s is copying from branch %s but the latter doesn't exist; continuing", t.branch, branchFrom)
	case mark == 0:
		xlog.Warn(t.repo.name, "unknown revision r%d on branch %s; continuing", branchRev, branchFrom)
	default:
		if !t.merges.Contains(mark) {
			t.merges.Add(mark)
			xlog.Debugf(t.repo.name, "adding %s@%d (:%d) as a merge point", branchFrom, branchRev, mark)
		}
	}
}

// DeleteFile records path for deletion, stripping a single trailing
// slash. An empty path is the sentinel meaning "delete all".
func (t *fastImportTransaction) DeleteFile(path string) {
	t.deletedFiles = append(t.deletedFiles, strings.TrimSuffix(path, "/"))
}

// AddFile allocates a descending file mark, writes the blob header to the
// child, and returns a sink for the caller to stream exactly length bytes
// into. The mark space invariant, that file marks must stay above the
// commit-mark counter, is asserted on every allocation.
func (t *fastImportTransaction) AddFile(path string, mode int, length int64) (io.Writer, error) {
	mark := t.repo.nextFileMark
	t.repo.nextFileMark--

	if mark <= t.repo.lastCommitMark+1 {
		panic(Throw("process", "mark space exhausted: file mark %d collided with commit mark %d in repository %s", mark, t.repo.lastCommitMark, t.repo.name))
	}

	t.modifiedFiles.WriteString("M ")
	t.modifiedFiles.WriteString(strconv.FormatInt(int64(mode), 8))
	t.modifiedFiles.WriteString(" :")
	t.modifiedFiles.WriteString(itoa(mark))
	t.modifiedFiles.WriteByte(' ')
	t.modifiedFiles.WriteString(path)
	t.modifiedFiles.WriteByte('\n')

	if !t.repo.opts.DryRun {
		t.repo.writeString("blob\nmark :" + itoa(mark) + "\ndata " + strconv.FormatInt(length, 10) + "\n")
	}

	return t.repo.blobWriter(), nil
}

// Commit allocates the next ascending commit mark, writes the commit
// block, its merges, file deletions/modifications, and the trailing
// progress line, then flushes.
func (t *fastImportTransaction) Commit() error {
	defer t.finish()

	t.repo.cache.touch(t.repo)

	mark := t.repo.lastCommitMark + 1
	t.repo.lastCommitMark = mark
	if mark >= t.repo.nextFileMark-1 {
		panic(Throw("process", "mark space exhausted: commit mark %d collided with file mark %d in repository %s", mark, t.repo.nextFileMark, t.repo.name))
	}

	message := commitMessage(t.log, t.repo.opts.AddMetadata, t.svnprefix, t.revnum)

	b := t.repo.branchOf(t.branch)
	var parentMark int
	if b.created != 0 && len(b.marks) != 0 {
		parentMark = b.tipMark()
	} else {
		xlog.Warn(t.repo.name, "branch %s doesn't exist at revision %d -- did you resume from the wrong revision?", t.branch, t.revnum)
		b.created = t.revnum
	}
	b.record(t.revnum, mark)

	ref := refName(t.branch)
	t.repo.writeString("commit " + ref + "\n" +
		"mark :" + itoa(mark) + "\n" +
		"committer " + t.author + " " + itoa(int(t.datetime)) + " -0000\n" +
		"data " + itoa(len(message)) + "\n")
	t.repo.writeString(message)
	t.repo.writeString("\n")

	var mergeDesc strings.Builder
	i := 0
	if parentMark != 0 {
		i = 1
	}
	for _, v := range t.merges.Values() {
		merge := v.(int)
		if merge == parentMark {
			xlog.Debugf(t.repo.name, "skipping merge :%d, matches the parent", merge)
			continue
		}
		i++
		if i > maxMergeParents {
			xlog.Warn(t.repo.name, "too many merge parents on branch %s at r%d; dropping the rest", t.branch, t.revnum)
			break
		}
		t.repo.writeString("merge :" + itoa(merge) + "\n")
		mergeDesc.WriteString(" :" + itoa(merge))
	}

	if t.containsDeleteAll() {
		t.repo.writeString("deleteall\n")
	} else {
		for _, path := range t.deletedFiles {
			t.repo.writeString("D " + path + "\n")
		}
	}

	t.repo.writeString(t.modifiedFiles.String())

	progress := "\nprogress SVN r" + itoa(t.revnum) + " branch " + t.branch + " = :" + itoa(mark)
	if mergeDesc.Len() > 0 {
		progress += " # merge from" + mergeDesc.String()
	}
	progress += "\n\n"
	t.repo.writeString(progress)

	t.repo.flush()

	xlog.Logit(t.repo.name, "%d modifications from SVN %s to %s/%s",
		len(t.deletedFiles)+t.modifiedFiles.Len(), t.svnprefix, t.repo.name, t.branch)
	return nil
}

func (t *fastImportTransaction) containsDeleteAll() bool {
	for _, path := range t.deletedFiles {
		if path == "" {
			return true
		}
	}
	return false
}

// Discard abandons the transaction without emitting a commit.
func (t *fastImportTransaction) Discard() {
	t.finish()
}

func (t *fastImportTransaction) finish() {
	if t.done {
		return
	}
	t.done = true
	t.repo.forgetTransaction()
}
