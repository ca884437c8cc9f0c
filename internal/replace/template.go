package replace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// groupSet describes the capture groups of a compiled pattern.
type groupSet struct {
	count int
	named func(name string) bool
}

// expandTemplate rewrites a Matcher style replacement into the ${n} form
// understood by both regexp and regexp2. A backslash quotes the next
// character. $n takes further digits only while they still name an
// existing group. ${name} refers to a named group; ${n} is accepted as a
// numbered reference.
func expandTemplate(tmpl string, groups groupSet) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '\\':
			i++
			if i == len(tmpl) {
				return "", errors.New("character to be escaped is missing")
			}
			if tmpl[i] == '$' {
				b.WriteString("$$")
			} else {
				b.WriteByte(tmpl[i])
			}
		case '$':
			i++
			if i == len(tmpl) {
				return "", errors.New("illegal group reference: group index is missing")
			}
			if tmpl[i] == '{' {
				end := strings.IndexByte(tmpl[i:], '}')
				if end < 0 {
					return "", errors.New("named capturing group is missing trailing '}'")
				}
				name := tmpl[i+1 : i+end]
				if err := checkGroupName(name, groups); err != nil {
					return "", err
				}
				b.WriteString("${" + name + "}")
				i += end
				continue
			}
			if !isDigit(tmpl[i]) {
				return "", fmt.Errorf("illegal group reference at offset %d", i-1)
			}
			n := int(tmpl[i] - '0')
			if n > groups.count {
				return "", fmt.Errorf("no group %d", n)
			}
			for i+1 < len(tmpl) && isDigit(tmpl[i+1]) {
				next := n*10 + int(tmpl[i+1]-'0')
				if next > groups.count {
					break
				}
				n = next
				i++
			}
			b.WriteString("${" + strconv.Itoa(n) + "}")
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func checkGroupName(name string, groups groupSet) error {
	if name == "" {
		return errors.New("named capturing group has 0 length name")
	}
	if n, err := strconv.Atoi(name); err == nil {
		if n < 0 || n > groups.count {
			return fmt.Errorf("no group %d", n)
		}
		return nil
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c == '_' || isDigit(c) || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') || (i == 0 && isDigit(c)) {
			return fmt.Errorf("illegal group name {%s}", name)
		}
	}
	if groups.named == nil || !groups.named(name) {
		return fmt.Errorf("no group with name {%s}", name)
	}
	return nil
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
