// Package flagx contains helpers for picking individual flags out of the
// command line without tripping over flags that belong to other layers of the
// configuration pipeline.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs returns the subset of args that belongs to allowedFlags, keeping
// values attached to them.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// A token that starts with '-' is never consumed as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, found := strings.Cut(arg, "="); found && strings.HasPrefix(arg, "-") {
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// StringFlag extracts the value of a single string flag known under several
// names (e.g. "c" and "config"). The last occurrence wins. It returns def when
// the flag is absent or cannot be parsed.
func StringFlag(args []string, def string, names ...string) string {
	allowed := make([]string, 0, len(names)*2)
	for _, n := range names {
		allowed = append(allowed, "-"+n, "--"+n)
	}

	value := def
	fs := flag.NewFlagSet("flagx", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	for _, n := range names {
		fs.StringVar(&value, n, def, "")
	}
	if err := fs.Parse(FilterArgs(args, allowed)); err != nil {
		return def
	}
	return value
}

// JSONConfigPath returns the config file passed via -c or -config, or "".
func JSONConfigPath(args []string) string {
	return StringFlag(args, "", "c", "config")
}

// EnvFilePath returns the dotenv file passed via -env, or ".env".
func EnvFilePath(args []string) string {
	return StringFlag(args, ".env", "env")
}
