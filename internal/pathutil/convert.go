package pathutil

import (
	"regexp"
	"strings"
)

var driveRe = regexp.MustCompile(`^([A-Za-z]):/`)

// ToWSL converts "C:\Users\me\a b.txt" into "/mnt/c/Users/me/a b.txt".
// Paths without a drive letter only get their separators flipped.
func ToWSL(p string) string {
	return translateDrive(p, "/mnt/")
}

// ToMSYS converts "C:\Users\me" into "/c/Users/me", the form expected by the
// rsync builds shipped with Git for Windows, cwRsync and Cygwin.
func ToMSYS(p string) string {
	return translateDrive(p, "/")
}

func translateDrive(p, prefix string) string {
	s := strings.ReplaceAll(p, `\`, "/")
	return driveRe.ReplaceAllStringFunc(s, func(m string) string {
		return prefix + strings.ToLower(m[:1]) + "/"
	})
}

// WithTrailingSeparator appends sep unless p already ends in / or \.
func WithTrailingSeparator(p string, sep string) string {
	if strings.HasSuffix(p, "/") || strings.HasSuffix(p, `\`) {
		return p
	}
	return p + sep
}

// JoinRemote joins POSIX remote path elements without cleaning "..".
func JoinRemote(dir, name string) string {
	dir = strings.TrimRight(strings.ReplaceAll(dir, `\`, "/"), "/")
	name = strings.TrimLeft(strings.ReplaceAll(name, `\`, "/"), "/")
	if dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}
