package handle

// accessBits derives the effective (read, write, delete) access bits an
// open requests from its options, the values share-mode admission compares
// against other handles' granted ShareMode.
func accessBits(o OpenOptions) ShareMode {
	var a ShareMode
	if o.Read {
		a |= ShareRead
	}
	if o.Write || o.Append || o.Truncate || o.Create {
		a |= ShareWrite
	}
	if o.DeleteOnClose {
		a |= ShareDelete
	}
	return a
}

// shareModeConflict reports whether opening with newOpts while existing is
// already open on the same node identity would violate share-mode
// admission, spec.md §4.6 "intersect requested share mode with those of
// existing handles ... Incompatible -> fail with Sharing".
//
// enforce controls whether the check runs at all: plain POSIX opens are
// advisory only unless the manager's EnforceWindowsShareModes policy is set
// or either side is WindowsOrigin.
func shareModeConflict(existing OpenOptions, newOpts OpenOptions, enforceWindows bool) bool {
	if !enforceWindows && !existing.WindowsOrigin && !newOpts.WindowsOrigin {
		return false
	}

	newAccess := accessBits(newOpts)
	existingAccess := accessBits(existing)

	if newAccess&^existing.ShareMode != 0 {
		return true
	}
	if existingAccess&^newOpts.ShareMode != 0 {
		return true
	}
	return false
}
