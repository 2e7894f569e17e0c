package main

import (
	"os"
	"strings"

	"shelf-cli/internal/cli"
)

func isDocumentName(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) > len(".pdf") && strings.HasSuffix(strings.ToLower(s), ".pdf")
}

// rewriteDirectOpenArgs turns `shelf <name>.pdf` into `shelf library open <name>.pdf`.
//
// Cobra treats the first non-flag token as a subcommand, so argv is rewritten
// before parsing. Persistent flags may come first, so look for the first
// positional token rather than argv[1].
func rewriteDirectOpenArgs(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--server": true,
		"--port":   true,
		"--format": true,
	}
	boolFlags := map[string]bool{
		"--pretty": true,
	}

	rewrite := func(at int, tail ...string) []string {
		out := make([]string, 0, len(argv)+3)
		out = append(out, argv[:at]...)
		out = append(out, "library", "open")
		out = append(out, tail...)
		return out
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && isDocumentName(argv[i+1]) {
				return rewrite(i, argv[i:]...)
			}
			return argv
		}

		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "=") || boolFlags[a] {
				continue
			}
			if valueFlags[a] {
				i++
			}
			continue
		}

		if isDocumentName(a) {
			return rewrite(i, argv[i:]...)
		}
		return argv
	}

	return argv
}

func main() {
	os.Args = rewriteDirectOpenArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
