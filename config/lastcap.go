package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

var (
	lastCapOnce  sync.Once
	lastCapValue = 40
)

// kernelLastCap returns the highest capability index supported by the
// running kernel, read from /proc/sys/kernel/cap_last_cap. Builder-time
// validation only needs a sane upper bound to reject obviously
// out-of-range capability masks (invariant 5); at drop time the credential
// engine bounds its loops with its own cached last-cap value, read from the
// same file, probing with prctl(PR_CAPBSET_READ) only when the file cannot
// be read.
func kernelLastCap() int {
	lastCapOnce.Do(func() {
		data, err := os.ReadFile("/proc/sys/kernel/cap_last_cap")
		if err != nil {
			return
		}
		if val, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && val >= 0 {
			lastCapValue = val
		}
	})
	return lastCapValue
}
