package detector

import (
	"errors"
	"sort"

	"semsync/internal/scanner"
)

// Prior exposes the previously committed view of the tree. Satisfied by the
// fingerprint store.
type Prior interface {
	Hashes() map[string]string
}

// Delta is the classified outcome of change detection. Paths are sorted.
// A path appears in at most one of Added, Modified, and Removed; hash-equal
// files appear in none. Oversize and Unreadable record files that could not
// be hashed this time; they never abort detection, so one bad file cannot
// hold up the rest of the change set.
type Delta struct {
	Added    []string
	Modified []string
	Removed  []string

	// Oversize lists eligible files skipped for exceeding the size ceiling.
	// A tracked file that grew past the ceiling also classifies as removed.
	Oversize []string

	// Unreadable lists files whose content hash failed. Tracked entries keep
	// their old fingerprint and are retried on a later cycle.
	Unreadable []string
}

// Empty reports whether the delta contains no index work.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Total returns the number of paths classified for index work.
func (d Delta) Total() int {
	return len(d.Added) + len(d.Modified) + len(d.Removed)
}

// Diff classifies a full scan result against the prior state.
// A path present only in the scan is added; present in both with differing
// hashes is modified; present only in the prior state is removed. Files the
// scan could not read carry over as unreadable and never classify as
// removed, so their fingerprints survive until they can be hashed again.
func Diff(result *scanner.Result, prior Prior) Delta {
	d := Delta{
		Oversize:   append([]string(nil), result.Oversize...),
		Unreadable: append([]string(nil), result.Failed...),
	}

	unreadable := make(map[string]struct{}, len(result.Failed))
	for _, path := range result.Failed {
		unreadable[path] = struct{}{}
	}

	priorHashes := prior.Hashes()
	for path, hash := range result.Hashes {
		old, ok := priorHashes[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case old != hash:
			d.Modified = append(d.Modified, path)
		}
	}
	for path := range priorHashes {
		if _, ok := result.Hashes[path]; ok {
			continue
		}
		if _, bad := unreadable[path]; bad {
			continue
		}
		d.Removed = append(d.Removed, path)
	}

	d.sort()
	return d
}

// DiffPaths classifies an explicit candidate list (hook or manual trigger)
// by hashing each listed path on disk. Listed paths the scanner's rules
// exclude are ignored; paths absent from disk but tracked classify as
// removed; paths absent from both sides are dropped silently. Per-path hash
// failures land in Oversize or Unreadable instead of failing the call.
func DiffPaths(s *scanner.Scanner, paths []string, prior Prior) Delta {
	var d Delta

	priorHashes := prior.Hashes()
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}

		old, tracked := priorHashes[path]
		if !s.Rules().Match(path, false) {
			// An excluded path can still be tracked if the rules changed.
			if tracked {
				d.Removed = append(d.Removed, path)
			}
			continue
		}

		hash, exists, err := s.HashPath(path)
		switch {
		case errors.Is(err, scanner.ErrOversize):
			d.Oversize = append(d.Oversize, path)
			if tracked {
				d.Removed = append(d.Removed, path)
			}
		case err != nil:
			d.Unreadable = append(d.Unreadable, path)
		case !exists && tracked:
			d.Removed = append(d.Removed, path)
		case !exists:
			// Never indexed and already gone.
		case !tracked:
			d.Added = append(d.Added, path)
		case old != hash:
			d.Modified = append(d.Modified, path)
		}
	}

	d.sort()
	return d
}

func (d *Delta) sort() {
	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Removed)
	sort.Strings(d.Oversize)
	sort.Strings(d.Unreadable)
}
