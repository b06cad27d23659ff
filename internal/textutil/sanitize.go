package textutil

import "strings"

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
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
)

// SanitizeFileName makes name usable as one path element. Slashes,
// backslashes, colons and asterisks become dashes, runs of whitespace
// collapse to a single dash and other unsafe characters are removed. An
// empty result becomes "unnamed".
func SanitizeFileName(name string) string {
	name = fileNameReplacer.Replace(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "-")
	name = strings.Trim(name, ".")
	if name == "" {
		return "unnamed"
	}
	return name
}
