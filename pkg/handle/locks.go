package handle

// rangesOverlap reports whether two byte ranges intersect, treating a
// length of 0 as "to end of file" (unbounded), the same convention the
// teacher's RangesOverlap uses.
func rangesOverlap(off1, len1, off2, len2 uint64) bool {
	if len1 == 0 && len2 == 0 {
		return true
	}
	if len1 == 0 {
		end2 := off2 + len2
		return off2 >= off1 || end2 > off1
	}
	if len2 == 0 {
		end1 := off1 + len1
		return off1 >= off2 || end1 > off2
	}
	end1 := off1 + len1
	end2 := off2 + len2
	return off1 < end2 && off2 < end1
}

// locksConflict implements spec.md §4.6's conflict matrix: "any exclusive
// vs any overlapping shared/exclusive is incompatible except by the same
// lock owner; shared+shared ok."
func locksConflict(existing, requested Lock) bool {
	if existing.Owner == requested.Owner {
		return false
	}
	if !rangesOverlap(existing.Offset, existing.Length, requested.Offset, requested.Length) {
		return false
	}
	if existing.Kind == LockShared && requested.Kind == LockShared {
		return false
	}
	return true
}
