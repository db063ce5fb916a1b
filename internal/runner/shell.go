package runner

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
)

// DefaultShell returns the shell commands run under when none is given:
// COMSPEC (or cmd.exe) on Windows, /bin/bash where it exists, /bin/sh
// otherwise.
func DefaultShell() string {
	if goruntime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if _, err := os.Stat("/bin/bash"); err == nil {
		return "/bin/bash"
	}
	return "/bin/sh"
}

func shellArgs(shell, command string) []string {
	switch strings.ToLower(filepath.Base(shell)) {
	case "cmd", "cmd.exe":
		return []string{"/C", command}
	}
	return []string{"-c", command}
}
