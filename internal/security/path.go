package security

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrLeadingHyphen = errors.New("filename cannot start with hyphen")
)

var windowsReservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
	"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// ValidateSavePath checks a relative export destination typed into the
// interactive prompt. Paths must stay below the working directory.
func ValidateSavePath(path string) error {
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}

	for _, part := range strings.FieldsFunc(path, isSeparator) {
		if part == ".." {
			return ErrPathTraversal
		}
	}

	base := filepath.Base(filepath.Clean(path))
	if isReserved(base) {
		return ErrReservedName
	}
	if strings.HasPrefix(base, "-") {
		return ErrLeadingHyphen
	}
	return nil
}

// SanitizeFilename turns an arbitrary string into a single safe path
// element, e.g. a user supplied export prefix.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	sanitized := replacer.Replace(name)
	sanitized = strings.TrimLeft(sanitized, ".- ")
	sanitized = strings.TrimRight(sanitized, ". ")

	if isReserved(sanitized) {
		sanitized += "_"
	}
	if sanitized == "" {
		sanitized = "file"
	}
	return sanitized
}

func isReserved(base string) bool {
	lower := strings.ToLower(base)
	return windowsReservedNames[strings.TrimSuffix(lower, filepath.Ext(lower))]
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
