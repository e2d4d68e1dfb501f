// Package undo records reversible actions taken during one release run so
// they can be replayed in reverse when a hard gate fails.
//
// A Log belongs to exactly one run. It is not safe for concurrent use.
package undo

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/releasekit/internal/fsutil"
)

// Kind tags an undo entry.
type Kind string

const (
	KindRestoreFile Kind = "restore_file"
	KindResetCommit Kind = "reset_commit"
	KindDeleteTag   Kind = "delete_tag"
)

// Owners group entries by the collaborator that knows how to replay them.
const (
	OwnerManifest  = "manifest"
	OwnerChangelog = "changelog"
	OwnerGit       = "git"
)

// Entry is one recorded action. Which fields are set depends on Kind.
type Entry struct {
	Seq   int    `json:"seq"`
	Kind  Kind   `json:"kind"`
	Owner string `json:"owner"`

	// RestoreFile
	Path     string `json:"path,omitempty"`
	Original []byte `json:"original,omitempty"`
	Existed  bool   `json:"existed,omitempty"`

	// ResetCommit
	Hash   string `json:"hash,omitempty"`
	Branch string `json:"branch,omitempty"`

	// DeleteTag
	Tag string `json:"tag,omitempty"`
}

func (e Entry) String() string {
	switch e.Kind {
	case KindRestoreFile:
		return fmt.Sprintf("restore %s", e.Path)
	case KindResetCommit:
		return fmt.Sprintf("reset %s to %s", e.Branch, e.Hash)
	case KindDeleteTag:
		return fmt.Sprintf("delete tag %s", e.Tag)
	default:
		return string(e.Kind)
	}
}

// Log is an append-only list of entries.
type Log struct {
	entries []Entry
	seq     int
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// FromEntries rebuilds a log from persisted entries. Sequence numbers
// continue after the highest one seen.
func FromEntries(entries []Entry) *Log {
	l := &Log{entries: append([]Entry(nil), entries...)}
	for _, e := range entries {
		l.seq = max(l.seq, e.Seq)
	}
	return l
}

func (l *Log) append(e Entry) {
	l.seq++
	e.Seq = l.seq
	l.entries = append(l.entries, e)
}

// RecordFile captures a file's pre-write state. existed=false means the
// file did not exist and rollback removes it.
func (l *Log) RecordFile(owner, path string, original []byte, existed bool) {
	cp := make([]byte, len(original))
	copy(cp, original)
	l.append(Entry{Kind: KindRestoreFile, Owner: owner, Path: path, Original: cp, Existed: existed})
}

// RecordCommit captures HEAD and branch before a history mutation.
func (l *Log) RecordCommit(owner, hash, branch string) {
	l.append(Entry{Kind: KindResetCommit, Owner: owner, Hash: hash, Branch: branch})
}

// RecordTag registers a created tag for deletion on rollback.
func (l *Log) RecordTag(owner, name string) {
	l.append(Entry{Kind: KindDeleteTag, Owner: owner, Tag: name})
}

// Mark returns a position that TakeSince can roll back to.
func (l *Log) Mark() int {
	return l.seq
}

// Len returns the number of live entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of owner's entries in recording order.
// An empty owner selects every entry.
func (l *Log) Entries(owner string) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if owner == "" || e.Owner == owner {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether owner has any live entries.
func (l *Log) Has(owner string) bool {
	for _, e := range l.entries {
		if e.Owner == owner {
			return true
		}
	}
	return false
}

// Take removes owner's entries and returns them newest first.
func (l *Log) Take(owner string) []Entry {
	return l.TakeSince(0, owner)
}

// TakeSince removes owner's entries recorded after mark and returns them
// newest first.
func (l *Log) TakeSince(mark int, owner string) []Entry {
	var taken []Entry
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.Owner == owner && e.Seq > mark {
			taken = append(taken, e)
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept

	for i, j := 0, len(taken)-1; i < j; i, j = i+1, j-1 {
		taken[i], taken[j] = taken[j], taken[i]
	}
	return taken
}

// Discard drops owner's entries without replaying them.
func (l *Log) Discard(owner string) {
	l.Take(owner)
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.entries = nil
}

// RestoreFile replays a RestoreFile entry: rewrites the original bytes, or
// removes the file when it did not exist before.
func RestoreFile(e Entry) error {
	if e.Kind != KindRestoreFile {
		return fmt.Errorf("entry %d is %s, not %s", e.Seq, e.Kind, KindRestoreFile)
	}
	if !e.Existed {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", e.Path, err)
		}
		return nil
	}
	if err := fsutil.WriteFileAtomic(e.Path, e.Original, 0o644); err != nil {
		return fmt.Errorf("failed to restore %s: %w", e.Path, err)
	}
	return nil
}
