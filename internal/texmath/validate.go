package texmath

import (
	"fmt"
	"strings"
)

// Validate performs the structural checks the backend is lenient about:
// balanced groups, paired \left/\right and matching \begin/\end
// environments. It returns an error wrapping ErrMalformedMath.
func Validate(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty expression", ErrMalformedMath)
	}

	depth := 0
	lefts := 0
	var envs []string

	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unexpected '}' at offset %d", ErrMalformedMath, i)
			}
		case '\\':
			if i+1 >= len(raw) {
				return fmt.Errorf("%w: trailing backslash", ErrMalformedMath)
			}
			name, n := controlWord(raw[i+1:])
			if n == 0 {
				// Control symbol such as \{ or \\; skip the escaped byte.
				i++
				continue
			}
			switch name {
			case "left":
				lefts++
			case "right":
				lefts--
				if lefts < 0 {
					return fmt.Errorf("%w: \\right without \\left", ErrMalformedMath)
				}
			case "begin", "end":
				env, ok := groupArg(raw[i+1+n:])
				if !ok {
					return fmt.Errorf("%w: \\%s without environment name", ErrMalformedMath, name)
				}
				if name == "begin" {
					envs = append(envs, env)
				} else {
					if len(envs) == 0 || envs[len(envs)-1] != env {
						return fmt.Errorf("%w: \\end{%s} does not close an open environment", ErrMalformedMath, env)
					}
					envs = envs[:len(envs)-1]
				}
			}
			i += n
		}
	}

	switch {
	case depth != 0:
		return fmt.Errorf("%w: %d unclosed '{'", ErrMalformedMath, depth)
	case lefts != 0:
		return fmt.Errorf("%w: \\left without \\right", ErrMalformedMath)
	case len(envs) != 0:
		return fmt.Errorf("%w: unclosed environment %q", ErrMalformedMath, envs[len(envs)-1])
	}
	return nil
}

// controlWord returns the letters following a backslash.
func controlWord(s string) (string, int) {
	n := 0
	for n < len(s) && isLetter(s[n]) {
		n++
	}
	return s[:n], n
}

// groupArg reads a {name} argument, allowing leading spaces.
func groupArg(s string) (string, bool) {
	s = strings.TrimLeft(s, " ")
	if !strings.HasPrefix(s, "{") {
		return "", false
	}
	end := strings.IndexByte(s, '}')
	if end < 0 {
		return "", false
	}
	return s[1:end], true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
