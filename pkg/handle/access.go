package handle

import (
	"context"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/namespace"
)

// POSIX mode-bit masks, owner/group/other triplets of rwx.
const (
	modeOwnerRead  = 0o400
	modeOwnerWrite = 0o200
	modeGroupRead  = 0o040
	modeGroupWrite = 0o020
	modeOtherRead  = 0o004
	modeOtherWrite = 0o002
)

// checkAccess implements spec.md §4.6's open-time permission check: "for
// modified or newly-created nodes consult upper metadata; for unmodified
// lower nodes consult Lower metadata; honor root_bypass_permissions flag if
// configured." path's attributes are whichever of those two sources
// GetAttrs already resolves to, so this is purely a mode-bit evaluation over
// the result.
func (m *Manager) checkAccess(ctx context.Context, root *namespace.Root, path string, uid, gid uint32, wantRead, wantWrite bool) error {
	if !wantRead && !wantWrite {
		return nil
	}
	if m.cfg.RootBypassPermissions && uid == 0 {
		return nil
	}

	attrs, err := m.graph.GetAttrs(ctx, root, path)
	if err != nil {
		return err
	}

	mode := attrs.Meta.Mode
	var readBit, writeBit uint32
	switch {
	case uid == attrs.Meta.UID:
		readBit, writeBit = modeOwnerRead, modeOwnerWrite
	case gid == attrs.Meta.GID:
		readBit, writeBit = modeGroupRead, modeGroupWrite
	default:
		readBit, writeBit = modeOtherRead, modeOtherWrite
	}

	if wantRead && mode&readBit == 0 {
		return fserrors.New(fserrors.PermissionDenied, "read access denied for "+path)
	}
	if wantWrite && mode&writeBit == 0 {
		return fserrors.New(fserrors.PermissionDenied, "write access denied for "+path)
	}
	return nil
}
