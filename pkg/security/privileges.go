package security

import (
	"os"
	"os/user"
)

// IsAdmin reports whether the process runs with euid 0. sqlassist only ever
// needs read access to its sources, so serve warns when this is true.
// On Windows Geteuid returns -1 and the check is always false.
func IsAdmin() bool {
	return os.Geteuid() == 0
}

// CurrentUser returns the account name recorded as the default audit user:
// the login environment first, then the OS account, then "unknown".
func CurrentUser() string {
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if name := os.Getenv(key); name != "" {
			return name
		}
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
