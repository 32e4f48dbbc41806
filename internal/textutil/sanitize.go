package textutil

import "strings"

var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons and asterisks become dashes; other unsafe
// characters are removed. Returns "unnamed" when nothing usable remains.
func SanitizeFileName(name string) string {
	out := strings.TrimSpace(fileNameReplacer.Replace(strings.TrimSpace(name)))
	if out == "" || out == "." || out == ".." {
		return "unnamed"
	}
	return out
}
