package config

import (
	"bytes"
	"encoding/binary"

	jerrors "jailcore/errors"
)

// flag bit positions within the marshalled header. Order is arbitrary but
// fixed — it is the wire contract between Marshal and Unmarshal, not a
// reflection of Config's field order.
const (
	flagUID = 1 << iota
	flagGID
	flagCaps
	flagVFS
	flagPIDs
	flagNet
	flagSeccompStrict
	flagReadonlyProc
	flagInheritUsergroups
	flagNoNewPrivs
	flagSeccompFilter
	flagLogSeccompFilter
	flagChroot
	flagMountTmp
	flagChdir
	flagDisablePtrace
	flagStackLimit
	flagTimeLimit
	flagOutputLimit
	flagMemoryLimit
	flagMetaFile
	flagUserPresent
)

func packFlags(c *Config) uint32 {
	var f uint32
	set := func(bit uint32, on bool) {
		if on {
			f |= bit
		}
	}
	set(flagUID, c.UIDSet)
	set(flagGID, c.GIDSet)
	set(flagCaps, c.CapsSet)
	set(flagVFS, c.VFS)
	set(flagPIDs, c.PIDs)
	set(flagNet, c.Net)
	set(flagSeccompStrict, c.SeccompStrict)
	set(flagReadonlyProc, c.ReadonlyProc)
	set(flagInheritUsergroups, c.InheritUsergroups)
	set(flagNoNewPrivs, c.NoNewPrivs)
	set(flagSeccompFilter, c.SeccompFilter)
	set(flagLogSeccompFilter, c.LogSeccompFilter)
	set(flagChroot, c.Chroot)
	set(flagMountTmp, c.MountTmp)
	set(flagChdir, c.Chdir)
	set(flagDisablePtrace, c.DisablePtrace)
	set(flagStackLimit, c.StackLimitSet)
	set(flagTimeLimit, c.TimeLimitSet)
	set(flagOutputLimit, c.OutputLimitSet)
	set(flagMemoryLimit, c.MemoryLimitSet)
	set(flagMetaFile, c.MetaFileSet)
	set(flagUserPresent, c.UserName != "")
	return f
}

// Size returns the exact number of bytes Marshal will write for c,
// including the 8-byte length prefix (testable property 2).
func Size(c *Config) int {
	n := 8 // length prefix
	n += headerSize()
	if c.UserName != "" {
		n += len(c.UserName) + 1
	}
	if c.Chroot {
		n += len(c.ChrootDir) + 1
	}
	if c.Chdir {
		n += len(c.ChdirDir) + 1
	}
	if c.SeccompFilter {
		n += len(c.Filter) * bpfInstructionSize
	}
	for _, bd := range c.Binds {
		n += len(bd.Src) + 1 + len(bd.Dest) + 1 + 4
	}
	return n
}

const bpfInstructionSize = 2 + 1 + 1 + 4 // Code + Jt + Jf + K

func headerSize() int {
	// flags(4) + UID(4) + GID(4) + GroupBaseGID(4) + Caps(8) + InitPID(4)
	// + FilterLen(2) + BindCount(4) + StackBytes(8) + CPUTimeMS(8)
	// + MemoryBytes(8) + OutputBytes(8)
	return 4 + 4 + 4 + 4 + 8 + 4 + 2 + 4 + 8 + 8 + 8 + 8
}

// Marshal produces the length-prefixed byte stream described in the
// marshal codec design: [8-byte size][header][user?][chroot?][chdir?]
// [filter bytes?][bind entries]. It never partially writes on error — the
// whole record is assembled in memory first.
func Marshal(c *Config) ([]byte, error) {
	size := Size(c)
	if len(c.Filter) > 0xffff {
		return nil, jerrors.ErrFilterTooLarge
	}

	body := new(bytes.Buffer)
	body.Grow(size - 8)

	flags := packFlags(c)
	writeU32(body, flags)
	writeU32(body, c.UID)
	writeU32(body, c.GID)
	writeU32(body, c.GroupBaseGID)
	writeU64(body, c.Caps)
	writeI32(body, int32(c.InitPID))
	writeU16(body, c.FilterLen)
	writeU32(body, uint32(c.BindCount))
	writeU64(body, c.StackBytes)
	writeU64(body, c.CPUTimeMS)
	writeU64(body, c.MemoryBytes)
	writeU64(body, c.OutputBytes)

	if c.UserName != "" {
		writeCString(body, c.UserName)
	}
	if c.Chroot {
		writeCString(body, c.ChrootDir)
	}
	if c.Chdir {
		writeCString(body, c.ChdirDir)
	}
	if c.SeccompFilter {
		for _, ins := range c.Filter {
			writeU16(body, ins.Code)
			body.WriteByte(ins.Jt)
			body.WriteByte(ins.Jf)
			writeU32(body, ins.K)
		}
	}
	for _, bd := range c.Binds {
		writeCString(body, bd.Src)
		writeCString(body, bd.Dest)
		if bd.Writable {
			writeI32(body, 1)
		} else {
			writeI32(body, 0)
		}
	}

	out := make([]byte, 8+body.Len())
	binary.LittleEndian.PutUint64(out[:8], uint64(8+body.Len()))
	copy(out[8:], body.Bytes())
	return out, nil
}

func writeU16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}

func writeU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func writeI32(b *bytes.Buffer, v int32) {
	writeU32(b, uint32(v))
}

func writeU64(b *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

func writeCString(b *bytes.Buffer, s string) {
	b.WriteString(s)
	b.WriteByte(0)
}
