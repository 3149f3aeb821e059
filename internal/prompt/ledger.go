package prompt

import (
	"github.com/hpungsan/promptkeep/internal/errors"
)

// AppendVersion pushes text as the new current version and evicts the oldest
// entries while the ledger exceeds MaxVersions.
func AppendVersion(p *Prompt, text string, now int64) {
	p.Versions = append(p.Versions, Version{Text: text, Timestamp: now})
	if over := len(p.Versions) - MaxVersions; over > 0 {
		kept := make([]Version, MaxVersions)
		copy(kept, p.Versions[over:])
		p.Versions = kept
	}
}

// CurrentText returns the text of the last version, or "" for an empty ledger.
func CurrentText(p Prompt) string {
	if len(p.Versions) == 0 {
		return ""
	}
	return p.Versions[len(p.Versions)-1].Text
}

// RemoveVersion deletes the version at index. It refuses to empty the ledger.
// removedCurrent reports whether the deleted entry was the current one.
func RemoveVersion(p *Prompt, index int) (removedCurrent bool, err error) {
	n := len(p.Versions)
	if index < 0 || index >= n {
		return false, errors.NewOutOfRange("version", index, n)
	}
	if n == 1 {
		return false, errors.NewInvalidRequest("cannot delete the only version of a prompt")
	}

	removedCurrent = index == n-1
	versions := make([]Version, 0, n-1)
	versions = append(versions, p.Versions[:index]...)
	versions = append(versions, p.Versions[index+1:]...)
	p.Versions = versions
	return removedCurrent, nil
}
