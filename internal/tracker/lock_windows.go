//go:build windows

package tracker

import "os"

// Windows has no POSIX flock; the log's single in-process mutex already
// serializes appends, which is the only writer this process has.
func lockExclusive(f *os.File) error { return nil }
func unlockFile(f *os.File) error    { return nil }
