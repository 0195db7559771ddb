// Package extract enumerates every URL reachable from a Telegram
// message: inline entities, inline-keyboard buttons, the webpage
// preview and bare URLs in the text itself.
package extract

import (
	"net/url"
	"unicode/utf16"

	"github.com/gotd/td/tg"
)

// FromMessage returns the distinct URLs of a message after
// percent-decoding each exactly once. Sources are consulted in a fixed
// order (entities, buttons, webpage preview, text scan) and duplicates
// are dropped while preserving first-seen order.
func FromMessage(msg *tg.Message) []string {
	c := newCollector()

	if msg != nil {
		collectEntities(msg, c)
		collectButtons(msg, c)
		collectWebpage(msg, c)
		ScanText(msg.Message, c.add)
	}

	return c.urls
}

// FromText runs only the plain-text scan, for callers without
// structured metadata.
func FromText(text string) []string {
	c := newCollector()
	ScanText(text, c.add)

	return c.urls
}

type collector struct {
	seen map[string]bool
	urls []string
}

func newCollector() *collector {
	return &collector{seen: make(map[string]bool)}
}

func (c *collector) add(raw string) {
	decoded := decodeOnce(raw)
	if decoded == "" || c.seen[decoded] {
		return
	}

	c.seen[decoded] = true
	c.urls = append(c.urls, decoded)
}

// decodeOnce percent-decodes a URL a single time, keeping the raw
// string when it is not valid percent-encoding.
func decodeOnce(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}

	return decoded
}

func collectEntities(msg *tg.Message, c *collector) {
	for _, ent := range msg.Entities {
		switch e := ent.(type) {
		case *tg.MessageEntityTextURL:
			c.add(e.URL)
		case *tg.MessageEntityURL:
			c.add(utf16Slice(msg.Message, e.Offset, e.Length))
		}
	}
}

func collectButtons(msg *tg.Message, c *collector) {
	markup, ok := msg.ReplyMarkup.(*tg.ReplyInlineMarkup)
	if !ok {
		return
	}

	for _, row := range markup.Rows {
		for _, btn := range row.Buttons {
			if b, ok := btn.(*tg.KeyboardButtonURL); ok {
				c.add(b.URL)
			}
		}
	}
}

func collectWebpage(msg *tg.Message, c *collector) {
	media, ok := msg.Media.(*tg.MessageMediaWebPage)
	if !ok {
		return
	}

	page, ok := media.Webpage.(*tg.WebPage)
	if !ok {
		return
	}

	if page.URL != "" {
		c.add(page.URL)
	}
}

// utf16Slice cuts a substring addressed by Telegram entity offsets,
// which count UTF-16 code units.
func utf16Slice(text string, offset, length int) string {
	enc := utf16.Encode([]rune(text))
	if offset < 0 || offset >= len(enc) || length <= 0 {
		return ""
	}

	end := offset + length
	if end > len(enc) {
		end = len(enc)
	}

	return string(utf16.Decode(enc[offset:end]))
}
