package command

import (
	"errors"
	"strings"
)

// ErrRemoteNeedsQuoting is returned by the scp strategy for destinations
// that a legacy-protocol scp would split in the remote shell.
var ErrRemoteNeedsQuoting = errors.New("destination needs remote shell quoting")

// shellSpecial holds the bytes a POSIX shell would interpret.
const shellSpecial = " \t'\"\\$`&;|<>()*?[]{}!#~"

// EscapeRemote backslash-escapes p for one pass through the remote login
// shell. A leading ~ is left alone so home expansion still works.
func EscapeRemote(p string) string {
	var b strings.Builder
	if p == "~" || strings.HasPrefix(p, "~/") {
		b.WriteByte('~')
		p = p[1:]
	}
	for _, r := range p {
		switch {
		case r == '\n':
			b.WriteString(`'` + "\n" + `'`)
		case strings.ContainsRune(shellSpecial, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NeedsRemoteQuoting reports whether p changes when escaped for the remote
// shell.
func NeedsRemoteQuoting(p string) bool {
	return EscapeRemote(p) != p
}
