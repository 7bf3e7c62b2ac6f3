package trigger

import (
	"strings"

	"semsync/internal/engine"
	"semsync/internal/scheduler"
)

// ParsePathList splits VCS hook output (e.g. `git diff --name-only`) into a
// normalized path list. Entries may be separated by newlines or whitespace;
// blanks are dropped and separators normalized to forward slashes. An empty
// result is valid: a commit can touch nothing indexable.
func ParsePathList(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(fields))
	paths := make([]string, 0, len(fields))
	for _, f := range fields {
		p := strings.ReplaceAll(strings.TrimSpace(f), `\`, "/")
		p = strings.TrimPrefix(p, "./")
		if p == "" || p == "." {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths
}

// Hook is the post-commit entry point: it hands the commit's touched paths
// to the scheduler. Empty input is a silent no-op so hooks never fail a
// commit.
func Hook(sched *scheduler.Scheduler, raw string) int {
	paths := ParsePathList(raw)
	if len(paths) == 0 {
		return 0
	}
	sched.Notify(paths, engine.SourceHook)
	return len(paths)
}
