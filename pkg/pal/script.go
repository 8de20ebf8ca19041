package pal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// expandPath replaces $VAR and ${VAR} references and a leading ~. A
// reference to an unset variable is an error rather than an empty string.
func expandPath(path string) (string, error) {
	var missing []string
	out := os.Expand(path, func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok {
			missing = append(missing, key)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("undefined environment variable(s) %s in %q", strings.Join(missing, ", "), path)
	}
	if out == "~" || strings.HasPrefix(out, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		out = filepath.Join(home, out[1:])
	}
	return out, nil
}

func (b *Bridge) loadScript(scriptPath string) error {
	path, err := expandPath(scriptPath)
	if err != nil {
		return &Error{Kind: KindInit, Op: "load script", Name: scriptPath, Cause: err}
	}
	b.script = path
	b.trace().Str("script", path).Msg("Loading script")

	src, err := os.ReadFile(path)
	if err != nil {
		return &Error{Kind: KindInit, Op: "load script", Name: path, Cause: err}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for name, v := range map[string]string{"__filename": abs, "__dirname": filepath.Dir(abs)} {
		if err = b.scope.vm.Set(name, v); err != nil {
			return &Error{Kind: KindInit, Op: "load script", Name: path, Cause: err}
		}
		b.scope.reserved[name] = struct{}{}
	}

	sc, err := b.in.CompileScript(path, string(src))
	if err == nil {
		_, err = b.scope.run(context.Background(), sc)
	}
	if err != nil {
		e := foreignError("load script", path, err)
		e.Kind = KindInit
		return e
	}
	return nil
}
