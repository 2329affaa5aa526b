//go:build !linux
// +build !linux

package target

// ThreadName returns the scheduler name of a thread, empty when it cannot
// be read.
func ThreadName(pid, tid int) string {
	return ""
}
