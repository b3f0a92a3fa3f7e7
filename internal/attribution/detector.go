// Package attribution resolves the operator name recorded on purge flags and
// reviews when the caller does not supply one.
package attribution

import (
	"os"
	"os/exec"
	"strings"
	"sync"
)

var (
	operatorOnce sync.Once
	operator     string
)

// DetectOperator returns the name to attribute an action to: the
// SCRIBE_OPERATOR or SCRIBE_USER environment variables, then git's
// user.name, then "unknown". The answer is computed once per process.
func DetectOperator() string {
	operatorOnce.Do(func() { operator = lookupOperator() })
	return operator
}

// lookupOperator walks the sources directly so tests can bypass the cache.
func lookupOperator() string {
	for _, source := range []func() string{
		func() string { return os.Getenv("SCRIBE_OPERATOR") },
		func() string { return os.Getenv("SCRIBE_USER") },
		gitUserName,
	} {
		if name := source(); name != "" {
			return name
		}
	}
	return "unknown"
}

func gitUserName() string {
	out, err := exec.Command("git", "config", "--get", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
