//go:build linux

package repo

import "golang.org/x/sys/unix"

// Superblock magic numbers of network filesystems.
var networkMagics = map[uint32]string{
	0x6969:     "nfs",
	0x517b:     "smb",
	0xff534d42: "cifs",
	0xfe534d42: "smb2",
	0x5346414f: "afs",
	0x73757245: "coda",
	0x564c:     "ncp",
	0x01021997: "9p",
	0x00c36400: "ceph",
}

// IsNetworkFS reports whether path lives on a network filesystem.
func IsNetworkFS(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false
	}

	_, ok := networkMagics[uint32(st.Type)] //nolint:gosec // magic numbers fit in 32 bits
	return ok
}
