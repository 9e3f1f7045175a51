//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SMB magics are missing from older kernel headers.
const (
	linuxCIFSMagic = 0xFF534D42
	linuxSMB2Magic = 0xFE534D42
)

type knownFS struct {
	name string
	kind FSKind
}

// Keyed by statfs f_type truncated to 32 bits; every magic fits.
var linuxFilesystems = map[uint32]knownFS{
	unix.NFS_SUPER_MAGIC:       {"nfs", FSNetwork},
	linuxCIFSMagic:             {"cifs", FSNetwork},
	unix.SMB_SUPER_MAGIC:       {"smbfs", FSNetwork},
	linuxSMB2Magic:             {"smb2", FSNetwork},
	unix.TMPFS_MAGIC:           {"tmpfs", FSVolatile},
	unix.RAMFS_MAGIC:           {"ramfs", FSVolatile},
	unix.EXT4_SUPER_MAGIC:      {"ext4", FSLocal},
	unix.BTRFS_SUPER_MAGIC:     {"btrfs", FSLocal},
	unix.XFS_SUPER_MAGIC:       {"xfs", FSLocal},
	unix.F2FS_SUPER_MAGIC:      {"f2fs", FSLocal},
	unix.OVERLAYFS_SUPER_MAGIC: {"overlay", FSLocal},
}

func detectFilesystem(path string) (string, FSKind, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", FSUnknown, fmt.Errorf("statfs %q: %w", path, err)
	}

	magic := uint32(st.Type)
	if fs, ok := linuxFilesystems[magic]; ok {
		return fs.name, fs.kind, nil
	}
	// Anything unrecognised is assumed to be a local block device.
	return fmt.Sprintf("0x%x", magic), FSLocal, nil
}
