package fastimport

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"

	shutil "github.com/termie/go-shutil"

	"github.com/humbled/svn2git/internal/xlog"
)

// progressLine matches a significant log-<name> line:
// "progress SVN r(\d+) branch (\S.*) = :(\d+)", with a "#"-introduced
// trailing comment and surrounding whitespace already stripped by the
// caller. This is a greedy match, so a branch name containing " = :" would
// be misparsed; no defensive handling is added for that case.
var progressLine = regexp.MustCompile(`^progress SVN r(\d+) branch (\S.*) = :(\d+)$`)

// setupIncremental replays log-<name> against the marks file to find the
// revision to resume at. cutoff is read and, if the log contains marks
// beyond what the marks file can vouch for, lowered; the returned
// newCutoff reflects that.
func setupIncremental(r *FastImportRepository, cutoff int) (resumeAt int, newCutoff int, err error) {
	logPath := logFileName(r.name)
	if _, statErr := os.Stat(logPath); os.IsNotExist(statErr) {
		return 1, cutoff, nil
	}

	logFile, err := os.OpenFile(logPath, os.O_RDWR, 0644)
	if err != nil {
		return 0, cutoff, err
	}
	defer logFile.Close()

	validMark := lastValidMark(r.dir, r.name)

	backup := logPath + ".old"

	lastRevnum := 0
	var pos int64
	reader := bufio.NewReader(logFile)

	truncateAt := int64(-1)

	for {
		pos, _ = logFile.Seek(0, os.SEEK_CUR)
		pos -= int64(reader.Buffered())

		rawLine, readErr := reader.ReadString('\n')
		if rawLine == "" && readErr != nil {
			break
		}

		line := stripComment(rawLine)
		if line == "" {
			if readErr != nil {
				break
			}
			continue
		}

		m := progressLine.FindStringSubmatch(line)
		if m == nil {
			if readErr != nil {
				break
			}
			continue
		}

		revnum, _ := strconv.Atoi(m[1])
		branchName := m[2]
		mark, _ := strconv.Atoi(m[3])

		if revnum >= cutoff {
			truncateAt = pos
			break
		}

		if revnum < lastRevnum {
			xlog.Warn(r.name, "revision numbers are not monotonic: got %d and then %d", lastRevnum, revnum)
		}

		if mark > validMark {
			xlog.Warn(r.name, "unknown commit mark found: rewinding -- did you hit Ctrl-C?")
			cutoff = revnum
			truncateAt = pos
			break
		}

		lastRevnum = revnum
		if r.lastCommitMark < mark {
			r.lastCommitMark = mark
		}

		b := r.branchOf(branchName)
		if b.created == 0 || mark == 0 || len(b.marks) == 0 {
			b.created = revnum
		}
		b.record(revnum, mark)

		if readErr != nil {
			break
		}
	}

	if truncateAt < 0 {
		if lastRevnum+1 == cutoff {
			os.Remove(backup)
		}
		return lastRevnum + 1, cutoff, nil
	}

	os.Remove(backup)
	if _, err := shutil.Copy(logPath, backup, false); err != nil {
		return 0, cutoff, err
	}
	xlog.Logit(r.name, "truncating history to revision %d", cutoff)
	if err := logFile.Truncate(truncateAt); err != nil {
		return 0, cutoff, err
	}
	return cutoff, cutoff, nil
}

// restoreLog rolls the log-<name> file back to its pre-setup contents if
// an aborted run left a .old backup: the run that truncated
// it never produced any new commits, so the truncation never happened as
// far as the next run should be concerned.
func restoreLog(name string) error {
	file := logFileName(name)
	backup := file + ".old"
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		return nil
	}
	os.Remove(file)
	return os.Rename(backup, file)
}

// stripComment trims a "#"-introduced trailing comment and surrounding
// whitespace.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i != -1 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
