package fastimport

import "sort"

// branch is the per-branch commit genealogy: parallel, equal-length
// commits/marks sequences. commits is non-decreasing; a zero
// entry in marks denotes a branch-delete marker, after which the next
// commit restarts genealogy.
type branch struct {
	created int
	commits []int
	marks   []int
}

func (b *branch) tipMark() int {
	if len(b.marks) == 0 {
		return 0
	}
	return b.marks[len(b.marks)-1]
}

func (b *branch) record(revnum, mark int) {
	b.commits = append(b.commits, revnum)
	b.marks = append(b.marks, mark)
}

// markFrom resolves an ancestor mark on branchFrom at or before branchRev:
//
//	-1  source branch unknown (never created, or no commits recorded)
//	 0  source branch has commits, but none at/before branchRev
//	>0  the mark of the nearest commit <= branchRev
//
// When desc is non-nil and non-empty and the nearest commit is found by the
// search, it is extended with " at r<rev>" and, if the resolved commit isn't
// exactly branchRev, " => r<commit>", the same annotation that gets appended
// to the branch-creation progress message. desc is left untouched when
// branchRev is the branch's latest commit or when the result is -1 or 0.
func markFrom(brFrom *branch, branchRev int, desc *[]byte) int {
	if brFrom == nil || brFrom.created == 0 {
		return -1
	}
	if len(brFrom.commits) == 0 {
		return -1
	}
	if branchRev == brFrom.commits[len(brFrom.commits)-1] {
		return brFrom.marks[len(brFrom.marks)-1]
	}

	// largest i with commits[i] <= branchRev: one less than the first
	// index whose commit exceeds branchRev (an upper-bound search).
	idx := sort.Search(len(brFrom.commits), func(i int) bool {
		return brFrom.commits[i] > branchRev
	})
	if idx == 0 {
		return 0
	}
	closest := brFrom.commits[idx-1]

	if desc != nil && len(*desc) > 0 {
		*desc = append(*desc, " at r"+itoa(branchRev)...)
		if closest != branchRev {
			*desc = append(*desc, " => r"+itoa(closest)...)
		}
	}

	return brFrom.marks[idx-1]
}
