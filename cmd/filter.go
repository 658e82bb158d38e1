package cmd

import (
	"encoding/binary"
	"os"

	"jailcore/config"
	jerrors "jailcore/errors"
)

// compiledFilterRecordSize is the on-disk size of one compiled BPF
// instruction: the external seccomp-BPF policy compiler's output format,
// identical to the kernel's struct sock_filter (2+1+1+4 bytes,
// little-endian, no padding).
const compiledFilterRecordSize = 8

// readFilterFile loads a pre-compiled seccomp-BPF filter program from
// path. Compiling a policy file into this binary form is the external
// collaborator's job (see the seccomp engine's component notes); this
// only parses the result.
func readFilterFile(path string) ([]config.BPFInstruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, jerrors.Wrap(err, jerrors.IOError, "read_filter_file")
	}
	if len(data)%compiledFilterRecordSize != 0 {
		return nil, jerrors.New(jerrors.InvalidArgument, "read_filter_file", "filter file size is not a multiple of the instruction record size")
	}

	count := len(data) / compiledFilterRecordSize
	out := make([]config.BPFInstruction, count)
	for i := 0; i < count; i++ {
		rec := data[i*compiledFilterRecordSize : (i+1)*compiledFilterRecordSize]
		out[i] = config.BPFInstruction{
			Code: binary.LittleEndian.Uint16(rec[0:2]),
			Jt:   rec[2],
			Jf:   rec[3],
			K:    binary.LittleEndian.Uint32(rec[4:8]),
		}
	}
	return out, nil
}
