package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
)

// CheckCommandAllowed enforces --enable-commands. An entry allows the exact
// command path and every command below it, so "actions" allows "actions list".
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	for _, allowed := range allowlist {
		entry := normalize(allowed)
		if entry == "" {
			continue
		}
		if path == entry || strings.HasPrefix(path, entry+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

func normalize(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}
