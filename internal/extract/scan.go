package extract

import (
	"regexp"
	"strings"
)

var (
	schemeURLPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

	// bareDomainPattern recognizes scheme-less URLs such as
	// pan.quark.cn/s/abc. The trailing path is optional.
	bareDomainPattern = regexp.MustCompile(
		`(?i)\b(?:[a-z0-9\x{4e00}-\x{9fa5}](?:[a-z0-9\x{4e00}-\x{9fa5}-]*[a-z0-9\x{4e00}-\x{9fa5}])?\.)+[a-z]{2,6}(?::\d{1,5})?(?:/[^\s<>"'，。！？）】》]*)?`)

	trailingPunct = ".,;:!?)\"'。，；：！？）】》"
)

// ScanText scans text line by line for explicit http(s) URLs and bare
// domains, invoking add for each hit in reading order.
func ScanText(text string, add func(string)) {
	for _, line := range strings.Split(text, "\n") {
		scanLine(line, add)
	}
}

// HasURL reports whether a line contains any URL form the scanner
// would recognize.
func HasURL(line string) bool {
	found := false
	scanLine(line, func(string) { found = true })

	return found
}

func scanLine(line string, add func(string)) {
	masked := line

	for _, loc := range schemeURLPattern.FindAllStringIndex(line, -1) {
		raw := strings.TrimRight(line[loc[0]:loc[1]], trailingPunct)
		if raw != "" {
			add(raw)
		}

		masked = masked[:loc[0]] + strings.Repeat(" ", loc[1]-loc[0]) + masked[loc[1]:]
	}

	for _, raw := range bareDomainPattern.FindAllString(masked, -1) {
		raw = strings.TrimRight(raw, trailingPunct)
		if raw != "" {
			add(raw)
		}
	}
}
