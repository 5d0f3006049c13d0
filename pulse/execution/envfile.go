package execution

import (
	"bufio"
	"os"
	"strings"

	"github.com/teranos/avscheduler/errors"
)

// ErrMalformedEnvFile indicates an env file line without '='.
var ErrMalformedEnvFile = errors.New("malformed env file")

// MaxEnvLineBytes caps one env file line, value included.
const MaxEnvLineBytes = 1 << 20

// LoadEnvFile reads KEY=VALUE lines. Blank lines and lines starting with '#'
// are skipped, an optional "export " prefix is dropped, and matching single
// or double quotes around the value are trimmed. The value is everything
// after the first '='. A missing file yields (nil, nil).
func LoadEnvFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open env file %s", path)
	}
	defer f.Close()

	var vars []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxEnvLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.WithHint(
				errors.Wrapf(ErrMalformedEnvFile, "%s:%d: expected KEY=VALUE, got %q", path, lineNo, line),
				"remove the line or comment it out with #")
		}
		vars = append(vars, key+"="+unquote(strings.TrimSpace(value)))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read env file %s:%d", path, lineNo+1)
	}
	return vars, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// mergeEnv overlays extra KEY=VALUE pairs on base; later keys win.
func mergeEnv(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}

	index := make(map[string]int, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range append(append([]string{}, base...), extra...) {
		key, _, _ := strings.Cut(kv, "=")
		if i, ok := index[key]; ok {
			out[i] = kv
			continue
		}
		index[key] = len(out)
		out = append(out, kv)
	}
	return out
}
