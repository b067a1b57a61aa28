// Package envcheck verifies that the external programs qermital drives are
// installed before any window is created.
package envcheck

import (
	"fmt"
	"os/exec"
	"strings"

	"pkt.systems/qermital/schema"
)

// MissingError lists executables that could not be found on PATH.
type MissingError struct {
	Missing []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("required executables missing: %s", strings.Join(e.Missing, ", "))
}

// Unwrap reports the error as a missing dependency.
func (e *MissingError) Unwrap() error {
	return schema.ErrMissingDependency
}

// LookPathFunc resolves an executable name.
type LookPathFunc func(file string) (string, error)

// Check resolves every name and returns a *MissingError naming the ones
// that are absent. Duplicates and blank names are ignored.
func Check(names []string) error {
	return CheckWith(exec.LookPath, names)
}

// CheckWith is Check with a custom resolver.
func CheckWith(lookPath LookPathFunc, names []string) error {
	seen := make(map[string]struct{}, len(names))
	var missing []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if _, err := lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Missing: missing}
	}
	return nil
}
