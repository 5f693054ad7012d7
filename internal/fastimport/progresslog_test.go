package fastimport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/humbled/svn2git/internal/config"
)

// chdirToTemp creates a scratch directory, makes it the working directory
// for the duration of the test, and restores the original on cleanup. The
// log-<name> file is always resolved relative to the driver's own cwd, so
// this is the simplest way to sandbox setupIncremental/restoreLog.
func chdirToTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
	return dir
}

func newIncrementalRepo(name string) *FastImportRepository {
	r := NewFastImportRepository(name, config.Defaults(), NewProcessCache(0))
	r.dir = "." // marks-<name> lives alongside log-<name> in this sandbox
	return r
}

func writeMarksFile(t *testing.T, name string, upTo int) {
	t.Helper()
	var sb strings.Builder
	for i := 1; i <= upTo; i++ {
		sb.WriteString(":" + itoa(i) + " deadbeef\n")
	}
	if err := os.WriteFile(marksFileName(name), []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSetupIncrementalMissingLog(t *testing.T) {
	chdirToTemp(t)
	r := newIncrementalRepo("proj")
	resumeAt, cutoff, err := r.SetupIncremental(100)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, resumeAt, 1)
	assertEqual(t, cutoff, 100)
}

func TestSetupIncrementalCleanEOF(t *testing.T) {
	chdirToTemp(t)
	r := newIncrementalRepo("proj")
	writeMarksFile(t, "proj", 2)

	log := "progress SVN r1 branch master = :1\n" +
		"progress SVN r5 branch master = :2\n"
	if err := os.WriteFile(logFileName("proj"), []byte(log), 0644); err != nil {
		t.Fatal(err)
	}

	resumeAt, cutoff, err := r.SetupIncremental(100)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, resumeAt, 6)
	assertEqual(t, cutoff, 100)
	assertEqual(t, r.lastCommitMark, 2)

	b := r.branches["master"]
	assertEqual(t, b.tipMark(), 2)

	if _, err := os.Stat(logFileName("proj") + ".old"); !os.IsNotExist(err) {
		t.Fatalf("expected no .old backup after a clean replay, got err=%v", err)
	}
}

func TestSetupIncrementalTruncatesAtCutoff(t *testing.T) {
	chdirToTemp(t)
	r := newIncrementalRepo("proj")
	writeMarksFile(t, "proj", 3)

	log := "progress SVN r1 branch master = :1\n" +
		"progress SVN r5 branch master = :2\n" +
		"progress SVN r9 branch master = :3\n"
	if err := os.WriteFile(logFileName("proj"), []byte(log), 0644); err != nil {
		t.Fatal(err)
	}

	resumeAt, cutoff, err := r.SetupIncremental(9)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, resumeAt, 9)
	assertEqual(t, cutoff, 9)
	assertEqual(t, r.lastCommitMark, 2) // only r1/r5 replayed before the cutoff line

	data, err := os.ReadFile(logFileName("proj"))
	if err != nil {
		t.Fatal(err)
	}
	assertStringEqual(t, string(data), "progress SVN r1 branch master = :1\nprogress SVN r5 branch master = :2\n")

	if _, err := os.Stat(logFileName("proj") + ".old"); err != nil {
		t.Fatalf("expected a .old backup of the untruncated log: %v", err)
	}
}

func TestSetupIncrementalRewindsOnUnknownMark(t *testing.T) {
	chdirToTemp(t)
	r := newIncrementalRepo("proj")
	writeMarksFile(t, "proj", 1) // fast-import only ever flushed mark 1

	log := "progress SVN r1 branch master = :1\n" +
		"progress SVN r5 branch master = :2\n" // mark 2 was never exported
	if err := os.WriteFile(logFileName("proj"), []byte(log), 0644); err != nil {
		t.Fatal(err)
	}

	resumeAt, cutoff, err := r.SetupIncremental(100)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, resumeAt, 5)
	assertEqual(t, cutoff, 5)
	assertEqual(t, r.lastCommitMark, 1)
}

func TestSetupIncrementalIgnoresCommentsAndBlankLines(t *testing.T) {
	chdirToTemp(t)
	r := newIncrementalRepo("proj")
	writeMarksFile(t, "proj", 1)

	log := "# header junk\n\nprogress SVN r1 branch master = :1 # note\n\n"
	if err := os.WriteFile(logFileName("proj"), []byte(log), 0644); err != nil {
		t.Fatal(err)
	}

	resumeAt, _, err := r.SetupIncremental(100)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, resumeAt, 2)
}

func TestRestoreLogNoBackupIsNoOp(t *testing.T) {
	chdirToTemp(t)
	if err := restoreLog("proj"); err != nil {
		t.Fatal(err)
	}
}

func TestRestoreLogRestoresBackup(t *testing.T) {
	dir := chdirToTemp(t)
	live := filepath.Join(dir, logFileName("proj"))
	backup := live + ".old"

	if err := os.WriteFile(backup, []byte("original contents\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(live, []byte("truncated contents\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := restoreLog("proj"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(live)
	if err != nil {
		t.Fatal(err)
	}
	assertStringEqual(t, string(data), "original contents\n")
	if _, err := os.Stat(backup); !os.IsNotExist(err) {
		t.Fatalf("expected backup to be consumed by rename, got err=%v", err)
	}
}

func TestStripComment(t *testing.T) {
	assertStringEqual(t, stripComment("progress x # trailing"), "progress x")
	assertStringEqual(t, stripComment("  progress x  "), "progress x")
	assertStringEqual(t, stripComment("# only a comment"), "")
	assertStringEqual(t, stripComment(""), "")
}
