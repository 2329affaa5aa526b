package target

import (
	"io/ioutil"
	"strconv"
	"strings"
)

// ThreadName returns the scheduler name of a thread, empty when it cannot
// be read.
func ThreadName(pid, tid int) string {
	comm, err := ioutil.ReadFile("/proc/" + strconv.Itoa(pid) + "/task/" + strconv.Itoa(tid) + "/comm")
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(string(comm), "\n")
}
