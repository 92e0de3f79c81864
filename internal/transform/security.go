package transform

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// shellMeta holds the characters a shell would interpret. Tools are run with
// exec directly, so none of them may appear in a command or argument.
const shellMeta = ";&|$`()<>\\\"'"

// ValidateArgument rejects an argument template that carries shell
// metacharacters or climbs out of the project with "..".
func ValidateArgument(arg string) error {
	if i := strings.IndexAny(arg, shellMeta); i >= 0 {
		return fmt.Errorf("contains dangerous character: %c", arg[i])
	}
	if slices.Contains(strings.Split(filepath.ToSlash(arg), "/"), "..") {
		return fmt.Errorf("contains path traversal: %s", arg)
	}
	return nil
}

// ValidateCommand checks that command names a single executable.
func ValidateCommand(command string) error {
	switch {
	case command == "":
		return fmt.Errorf("command cannot be empty")
	case strings.ContainsAny(command, " \t\n"):
		return fmt.Errorf("command %q must be a single executable name", command)
	}
	if err := ValidateArgument(command); err != nil {
		return fmt.Errorf("invalid command %q: %w", command, err)
	}
	return nil
}
