package eligibility

import (
	"iter"
	"strings"

	"github.com/scmhooks/jenkins-notifier/internal/events"
)

// Branches yields the branch names touched by changes. Deletions and refs
// outside refs/heads/ are skipped.
func Branches(changes []events.RefChange) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, c := range changes {
			if c.Type == events.ChangeDelete || !strings.HasPrefix(c.RefID, events.RefsHeads) {
				continue
			}
			if !yield(c.BranchRef()) {
				return
			}
		}
	}
}
