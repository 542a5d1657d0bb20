package vm

// RegionInfo is a read-only snapshot of one region, exposed so external
// collaborators (diag.Snapshot) can describe a space without reaching
// into its unexported linked structures.
type RegionInfo struct {
	Begin     uintptr
	Pages     uintptr
	UsedPages uintptr
	Flags     Flags
	// Shared reports whether the region currently has any sibling on its
	// shared ring (spec.md §4.3/§4.4).
	Shared bool
}

// GapInfo is a read-only snapshot of one free gap.
type GapInfo struct {
	Begin uintptr
	Pages uintptr
}

// Regions returns a snapshot of every region currently owned by s, in no
// particular order.
func (s *Space) Regions() []RegionInfo {
	s.lockPmap()
	defer s.unlockPmap()

	var out []RegionInfo
	for r := s.regions; r != nil; r = r.next {
		out = append(out, RegionInfo{
			Begin:     r.Begin,
			Pages:     r.Pages,
			UsedPages: r.UsedPages,
			Flags:     r.Flags,
			Shared:    r.prevShared != nil || r.nextShared != nil,
		})
	}
	return out
}

// Gaps returns a snapshot of every free gap currently tracked by s, in no
// particular order.
func (s *Space) Gaps() []GapInfo {
	s.lockPmap()
	defer s.unlockPmap()

	var out []GapInfo
	for g := s.gaps; g != nil; g = g.next {
		out = append(out, GapInfo{Begin: g.Begin, Pages: g.Pages})
	}
	return out
}
