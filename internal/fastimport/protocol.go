package fastimport

import "strconv"

// MaxMark is the shared ceiling of the commit-mark / file-mark integer
// space. Some versions of git fast-import are unreliable
// above this value, which is why it's a fixed constant rather than
// derived from anything at runtime.
const MaxMark = (1 << 20) - 1

// maxMergeParents is git's own cap on octopus-merge parent count; extras
// beyond this are dropped with a warning.
const maxMergeParents = 16

func itoa(n int) string {
	return strconv.Itoa(n)
}

// refName prefixes a bare branch/tag name with refs/heads/ unless it
// already names a fully qualified ref.
func refName(name string) string {
	if len(name) >= 5 && name[:5] == "refs/" {
		return name
	}
	return "refs/heads/" + name
}

const nullSHA = "0000000000000000000000000000000000000000"
