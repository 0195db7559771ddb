// Package parse turns free-form channel text plus extracted URLs into
// a normalized share record: title, description, tags and typed
// provider links with optional variant labels.
package parse

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/gotd/td/tg"

	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/extract"
	"github.com/panwatch/panwatch/internal/netdisk"
)

// Result is the parser output. Links only contains classified URLs;
// an empty Links means the message carries no recognized share.
type Result struct {
	Title       string
	Description string
	Links       domain.Links
	Tags        []string
	Source      string
	Channel     string
	GroupName   string
	Bot         string
}

const (
	titleMarker       = "名称："
	shortLineMaxRunes = 10
)

var (
	labelPrefixPattern = regexp.MustCompile(`^([\p{Han}A-Za-z0-9]+)[：:]`)
	freeLabelPattern   = regexp.MustCompile(`^(主链|备用|普码|高码|HDR|杜比|IQ|[\p{Han}A-Za-z0-9]+码)$`)
	tagPattern         = regexp.MustCompile(`#([\p{Han}A-Za-z0-9_]+)`)
	handlePattern      = regexp.MustCompile(`@[A-Za-z0-9_]+`)
	schemePattern      = regexp.MustCompile(`https?://`)
	bulletPattern      = regexp.MustCompile(`^(?:\* |- |\+ |> |>> |• |➤ |▪ |√ )+`)
	sizeHeadPattern    = regexp.MustCompile(`^[^\p{Han}A-Za-z0-9]*大小`)
	sizeSplitPattern   = regexp.MustCompile(`大小[:：\s]*`)
	sizeUnitPattern    = regexp.MustCompile(`(?i)\d+\s*(GB|MB|TB|KB|G|M|T|K|B|字节|左右|约|每集|单集)`)
	viaPattern         = regexp.MustCompile(`(?i)\bvia\s*\S*`)
	metaLinePattern    = regexp.MustCompile(`^.*(标签|投稿人|频道|搜索|机场)\s*[：:].*$`)
	inlineLinkPattern  = regexp.MustCompile(`[🔗\s]*链接[：:]?\s*\S+`)
	brandWordPattern   = regexp.MustCompile(`(` + strings.Join(netdisk.BrandWords, "|") + `)`)
	punctOnlyPattern   = regexp.MustCompile(`^[.。·、,，-]+$`)

	adPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i).*🌍.*群主自用机场.*守候网络.*9折活动.*`),
		regexp.MustCompile(`(?i).*🔥.*云盘播放神器.*VidHub.*`),
		regexp.MustCompile(`(?i).*群主自用机场.*守候网络.*9折活动.*`),
		regexp.MustCompile(`(?i).*云盘播放神器.*VidHub.*`),
	}
)

// skipHeaders maps header-line prefixes to the metadata field they
// populate; an empty field means the line is dropped outright.
var skipHeaders = []struct {
	prefix string
	field  string
}{
	{"🎉 来自", "source"},
	{"📢 频道", "channel"},
	{"👥 群组", "group"},
	{"🤖 投稿", "bot"},
	{"🔍 投稿/搜索", ""},
	{"⚠️", ""},
}

// Message parses a full Telegram message, running URL extraction over
// its entities, buttons, webpage preview and text.
func Message(msg *tg.Message) Result {
	return Parse(msg.GetMessage(), extract.FromMessage(msg))
}

// Parse is a pure function from text plus extracted URLs to a
// normalized record. Given the same input it produces the same record
// byte for byte.
func Parse(text string, urls []string) Result {
	lines := strings.Split(text, "\n")

	res := Result{Links: collectLinks(lines, urls)}

	title, rest, ok := splitTitle(lines)
	if !ok {
		return Result{Links: domain.Links{}}
	}

	res.Title = norm.NFC.String(title)
	res.describe(rest)

	return res
}

// collectLinks classifies every URL and resolves its optional label
// from the surrounding lines.
func collectLinks(lines []string, urls []string) domain.Links {
	links := domain.Links{}

	for _, u := range urls {
		provider := netdisk.Classify(u)
		if provider == netdisk.Unknown {
			continue
		}

		if containsURL(links[provider], u) {
			continue
		}

		links[provider] = append(links[provider], domain.Link{
			Label: resolveLabel(lines, u),
			URL:   u,
		})
	}

	return links
}

func containsURL(items []domain.Link, u string) bool {
	for _, item := range items {
		if item.URL == u {
			return true
		}
	}

	return false
}

// resolveLabel applies the three fall-through rules in order on the
// first line containing the URL: colon prefix (longest vocabulary
// match), text before the URL ending with a vocabulary entry, then a
// short previous line containing one. First hit wins.
func resolveLabel(lines []string, u string) string {
	for i, line := range lines {
		if !strings.Contains(line, u) {
			continue
		}

		label := ""

		if m := labelPrefixPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if hit := longestVocabIn(m[1]); hit != "" {
				return hit
			}
		} else if idx := strings.Index(line, u); idx > 0 {
			before := strings.TrimSpace(line[:idx])
			for _, v := range vocabByLength {
				if strings.HasSuffix(before, v) {
					label = v
					break
				}
			}

			if label != "" {
				return label
			}
		}

		if i > 0 {
			prev := strings.TrimSpace(lines[i-1])
			if utf8.RuneCountInString(prev) < shortLineMaxRunes {
				for _, v := range vocabByLength {
					if strings.Contains(prev, v) {
						return v
					}
				}
			}
		}
	}

	return ""
}

func longestVocabIn(token string) string {
	best := ""

	for _, v := range labelVocabulary {
		if strings.Contains(token, v) && len(v) > len(best) {
			best = v
		}
	}

	return best
}

// splitTitle consumes the 名称： line when present, otherwise the first
// non-empty line. The remaining lines form the description working set.
func splitTitle(lines []string) (title string, rest []string, ok bool) {
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		if strings.HasPrefix(stripped, titleMarker) {
			title = strings.TrimSpace(strings.ReplaceAll(stripped, titleMarker, ""))
			rest = append(rest, lines[:i]...)
			rest = append(rest, lines[i+1:]...)

			return title, rest, true
		}
	}

	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			rest = append(rest, lines[:i]...)
			rest = append(rest, lines[i+1:]...)

			return strings.TrimSpace(line), rest, true
		}
	}

	return "", nil, false
}

// describe runs the description and tag pass over the working set and
// finalizes the record.
func (r *Result) describe(lines []string) {
	var buffer []string

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if schemePattern.MatchString(line) || extract.HasURL(line) {
			continue
		}

		if handlePattern.MatchString(line) {
			continue
		}

		cleaned := strings.TrimSpace(bulletPattern.ReplaceAllString(line, ""))

		if r.consumeHeader(cleaned) {
			continue
		}

		if sizeHeadPattern.MatchString(cleaned) {
			if info := sizeRemainder(cleaned); sizeUnitPattern.MatchString(info) {
				buffer = append(buffer, cleaned)
			}

			continue
		}

		if strings.HasPrefix(cleaned, "链接：") || strings.HasPrefix(cleaned, "描述区域") {
			continue
		}

		if freeLabelPattern.MatchString(cleaned) {
			continue
		}

		body := strings.TrimSpace(viaPattern.ReplaceAllString(cleaned, ""))

		if found := tagPattern.FindAllStringSubmatch(body, -1); found != nil {
			for _, m := range found {
				r.Tags = append(r.Tags, m[1])
			}

			body = strings.TrimSpace(tagPattern.ReplaceAllString(body, ""))
		}

		body = strings.TrimSpace(metaLinePattern.ReplaceAllString(body, ""))

		if strings.HasPrefix(cleaned, "分享：") || strings.HasPrefix(cleaned, "网址：") ||
			strings.HasPrefix(cleaned, "🌍") || strings.HasPrefix(cleaned, "🔥") {
			continue
		}

		body = strings.TrimSpace(inlineLinkPattern.ReplaceAllString(body, ""))
		if body == "" {
			continue
		}

		if isAdLine(body) {
			continue
		}

		buffer = append(buffer, body)
	}

	r.Tags = dedupTags(r.Tags)
	r.Description = finalizeDescription(buffer)
}

// consumeHeader handles the fixed keyword header lines, populating the
// matching metadata field. Returns true when the line is consumed.
func (r *Result) consumeHeader(line string) bool {
	for _, h := range skipHeaders {
		if !strings.HasPrefix(line, h.prefix) {
			continue
		}

		value := strings.TrimPrefix(line, h.prefix)
		value = strings.NewReplacer("：", "", ":", "").Replace(value)
		value = strings.TrimSpace(value)

		switch h.field {
		case "source":
			r.Source = value
		case "channel":
			r.Channel = value
		case "group":
			r.GroupName = value
		case "bot":
			r.Bot = value
		}

		return true
	}

	return false
}

func sizeRemainder(line string) string {
	parts := sizeSplitPattern.Split(line, 2)
	if len(parts) < 2 {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func isAdLine(line string) bool {
	for _, p := range adPatterns {
		if p.MatchString(line) {
			return true
		}
	}

	return false
}

func dedupTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		if seen[tag] {
			continue
		}

		seen[tag] = true
		out = append(out, tag)
	}

	return out
}

// finalizeDescription strips bare provider names, collapses dangling
// fullwidth colons and drops punctuation-only lines.
func finalizeDescription(buffer []string) string {
	joined := brandWordPattern.ReplaceAllString(strings.Join(buffer, "\n"), "")

	var out []string

	for _, line := range strings.Split(joined, "\n") {
		line = strings.TrimRight(line, " \t")
		line = strings.TrimSuffix(line, "：")
		line = strings.TrimSpace(line)

		if line == "" || punctOnlyPattern.MatchString(line) {
			continue
		}

		out = append(out, line)
	}

	return norm.NFC.String(strings.Join(out, "\n"))
}
