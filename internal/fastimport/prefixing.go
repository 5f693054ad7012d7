package fastimport

import "io"

// PrefixingRepository decorates a backing Repository, routing a sub-tree's
// commits into it under a path prefix. It owns no state
// beyond (backing, prefix); every branch/tag operation forwards unchanged.
type PrefixingRepository struct {
	backing Repository
	prefix  string
}

// NewPrefixingRepository wraps backing so every file path this repository
// sees is written under prefix in backing.
func NewPrefixingRepository(backing Repository, prefix string) *PrefixingRepository {
	return &PrefixingRepository{backing: backing, prefix: prefix}
}

func (p *PrefixingRepository) Name() string { return p.backing.Name() }

// SetupIncremental has no resume state of its own: the
// backing repository is set up separately by the driver.
func (p *PrefixingRepository) SetupIncremental(cutoff int) (int, int, error) {
	return 1, cutoff, nil
}

func (p *PrefixingRepository) RestoreLog() error { return nil }

func (p *PrefixingRepository) CreateBranch(branchName string, revnum int, branchFrom string, branchRev int) error {
	return p.backing.CreateBranch(branchName, revnum, branchFrom, branchRev)
}

func (p *PrefixingRepository) DeleteBranch(branchName string, revnum int) error {
	return p.backing.DeleteBranch(branchName, revnum)
}

func (p *PrefixingRepository) NewTransaction(branchName, svnprefix string, revnum int) Transaction {
	return &prefixingTransaction{
		inner:  p.backing.NewTransaction(branchName, svnprefix, revnum),
		prefix: p.prefix,
	}
}

func (p *PrefixingRepository) CreateAnnotatedTag(ref, svnprefix string, revnum int, author string, dt uint32, log string) {
	p.backing.CreateAnnotatedTag(ref, svnprefix, revnum, author, dt, log)
}

// FinalizeTags is a no-op: the driver separately finalizes the backing
// repository once, regardless of how many PrefixingRepository facades
// forward into it.
func (p *PrefixingRepository) FinalizeTags() error { return nil }

// Close is a no-op for the same reason: the backing repository's lifetime
// is managed by whoever constructed it, not by this facade.
func (p *PrefixingRepository) Close() error { return nil }

// prefixingTransaction forwards every call to inner unchanged except
// DeleteFile/AddFile, which get prefix prepended to their path.
type prefixingTransaction struct {
	inner  Transaction
	prefix string
}

func (t *prefixingTransaction) SetAuthor(author string) { t.inner.SetAuthor(author) }
func (t *prefixingTransaction) SetDateTime(dt uint32)   { t.inner.SetDateTime(dt) }
func (t *prefixingTransaction) SetLog(log string)       { t.inner.SetLog(log) }

func (t *prefixingTransaction) NoteCopyFromBranch(branchFrom string, branchRev int) {
	t.inner.NoteCopyFromBranch(branchFrom, branchRev)
}

func (t *prefixingTransaction) DeleteFile(path string) {
	t.inner.DeleteFile(t.prefix + path)
}

func (t *prefixingTransaction) AddFile(path string, mode int, length int64) (io.Writer, error) {
	return t.inner.AddFile(t.prefix+path, mode, length)
}

func (t *prefixingTransaction) Commit() error { return t.inner.Commit() }
func (t *prefixingTransaction) Discard()      { t.inner.Discard() }
