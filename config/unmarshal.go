package config

import (
	"bytes"
	"encoding/binary"

	jerrors "jailcore/errors"
)

// reader is a small bounds-checked cursor over the marshalled byte slice.
// Every read fails with TruncatedInput rather than panicking, so a
// deliberately-truncated prefix of Marshal's output is rejected cleanly
// (testable property 3) instead of crashing the unmarshaller.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, jerrors.ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.need(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) u64() (uint64, error) {
	b, err := r.need(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// cstring reads a NUL-terminated string from the remaining buffer.
// Fails with NoTerminator if no NUL byte is found before the buffer ends.
func (r *reader) cstring() (string, error) {
	idx := bytes.IndexByte(r.buf[r.pos:], 0)
	if idx < 0 {
		return "", jerrors.ErrNoTerminator
	}
	s := string(r.buf[r.pos : r.pos+idx])
	r.pos += idx + 1
	return s, nil
}

// Unmarshal reconstructs a Config from bytes produced by Marshal. It
// either succeeds completely or returns an error with no partially
// constructed Config (testable property 3); pointer-valued fields in the
// header act purely as presence booleans deciding whether the
// corresponding payload segment is consumed.
func Unmarshal(data []byte) (*Config, error) {
	if len(data) < 8 {
		return nil, jerrors.ErrTruncated
	}
	declared := binary.LittleEndian.Uint64(data[:8])
	if uint64(len(data)) < declared {
		return nil, jerrors.ErrTruncated
	}

	r := &reader{buf: data[8:]}

	flags, err := r.u32()
	if err != nil {
		return nil, err
	}
	c := &Config{}
	has := func(bit uint32) bool { return flags&bit != 0 }

	c.UIDSet = has(flagUID)
	c.GIDSet = has(flagGID)
	c.CapsSet = has(flagCaps)
	c.VFS = has(flagVFS)
	c.PIDs = has(flagPIDs)
	c.Net = has(flagNet)
	c.SeccompStrict = has(flagSeccompStrict)
	c.ReadonlyProc = has(flagReadonlyProc)
	c.InheritUsergroups = has(flagInheritUsergroups)
	c.NoNewPrivs = has(flagNoNewPrivs)
	c.SeccompFilter = has(flagSeccompFilter)
	c.LogSeccompFilter = has(flagLogSeccompFilter)
	c.Chroot = has(flagChroot)
	c.MountTmp = has(flagMountTmp)
	c.Chdir = has(flagChdir)
	c.DisablePtrace = has(flagDisablePtrace)
	c.StackLimitSet = has(flagStackLimit)
	c.TimeLimitSet = has(flagTimeLimit)
	c.OutputLimitSet = has(flagOutputLimit)
	c.MemoryLimitSet = has(flagMemoryLimit)
	c.MetaFileSet = has(flagMetaFile)
	userPresent := has(flagUserPresent)

	if c.UID, err = r.u32(); err != nil {
		return nil, err
	}
	if c.GID, err = r.u32(); err != nil {
		return nil, err
	}
	if c.GroupBaseGID, err = r.u32(); err != nil {
		return nil, err
	}
	if c.Caps, err = r.u64(); err != nil {
		return nil, err
	}
	initPID, err := r.i32()
	if err != nil {
		return nil, err
	}
	c.InitPID = int(initPID)
	if c.FilterLen, err = r.u16(); err != nil {
		return nil, err
	}
	bindCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	c.BindCount = int(bindCount)
	if c.StackBytes, err = r.u64(); err != nil {
		return nil, err
	}
	if c.CPUTimeMS, err = r.u64(); err != nil {
		return nil, err
	}
	if c.MemoryBytes, err = r.u64(); err != nil {
		return nil, err
	}
	if c.OutputBytes, err = r.u64(); err != nil {
		return nil, err
	}

	if userPresent {
		if c.UserName, err = r.cstring(); err != nil {
			return nil, err
		}
	}
	if c.Chroot {
		if c.ChrootDir, err = r.cstring(); err != nil {
			return nil, err
		}
	}
	if c.Chdir {
		if c.ChdirDir, err = r.cstring(); err != nil {
			return nil, err
		}
	}
	if c.SeccompFilter {
		if int(c.FilterLen) > 0xffff {
			return nil, jerrors.ErrFilterTooLarge
		}
		filter := make([]BPFInstruction, 0, c.FilterLen)
		for i := 0; i < int(c.FilterLen); i++ {
			code, err := r.u16()
			if err != nil {
				return nil, err
			}
			jtJf, err := r.need(2)
			if err != nil {
				return nil, err
			}
			k, err := r.u32()
			if err != nil {
				return nil, err
			}
			filter = append(filter, BPFInstruction{Code: code, Jt: jtJf[0], Jf: jtJf[1], K: k})
		}
		c.Filter = filter
	}

	binds := make([]BindEntry, 0, c.BindCount)
	for i := 0; i < c.BindCount; i++ {
		src, err := r.cstring()
		if err != nil {
			return nil, err
		}
		dest, err := r.cstring()
		if err != nil {
			return nil, err
		}
		writable, err := r.i32()
		if err != nil {
			return nil, err
		}
		binds = append(binds, BindEntry{Src: src, Dest: dest, Writable: writable != 0})
	}
	c.Binds = binds

	return c, nil
}
