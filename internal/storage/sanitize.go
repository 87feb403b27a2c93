package storage

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	unsafeFilenameCharacters = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	windowsDeviceNames       = map[string]struct{}{
		"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
		"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
	}
)

// SanitizeFilename reduces an uploaded filename to a flat ASCII name that is
// safe to use as a storage key. It may return an empty string.
func SanitizeFilename(filename string) string {
	decomposed := norm.NFKD.String(filename)
	ascii := make([]byte, 0, len(decomposed))
	for i := 0; i < len(decomposed); i++ {
		if decomposed[i] < 0x80 {
			ascii = append(ascii, decomposed[i])
		}
	}

	s := strings.NewReplacer("/", " ", "\\", " ").Replace(string(ascii))
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeFilenameCharacters.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")

	if _, ok := windowsDeviceNames[strings.ToUpper(strings.SplitN(s, ".", 2)[0])]; ok && s != "" {
		s = "_" + s
	}

	return s
}
