// Package netdisk classifies share URLs into the fixed set of
// supported cloud-storage providers.
package netdisk

import (
	"net/url"
	"strings"
)

// Provider tags produced by Classify.
const (
	Quark   = "夸克网盘"
	Aliyun  = "阿里云盘"
	Baidu   = "百度网盘"
	Pan115  = "115网盘"
	Tianyi  = "天翼云盘"
	Pan123  = "123云盘"
	UC      = "UC网盘"
	Xunlei  = "迅雷"
	Unknown = ""
)

// classifyTable is ordered; the first matching row wins. The substring
// match on the host is intentionally lax (it accepts "115" inside
// arbitrary hosts) to stay compatible with historical records.
var classifyTable = []struct {
	keys []string
	tag  string
}{
	{[]string{"quark", "夸克"}, Quark},
	{[]string{"aliyundrive", "aliyun", "阿里", "alipan"}, Aliyun},
	{[]string{"baidu", "pan.baidu"}, Baidu},
	{[]string{"115.com", "115网盘", "115pan", "115", "115cdn.com"}, Pan115},
	{[]string{"cloud.189", "天翼", "189.cn"}, Tianyi},
	{[]string{"123pan.com", "www.123pan.com", "123912.com", "www.123912.com", "123"}, Pan123},
	{[]string{"ucdisk", "uc网盘", "ucloud", "drive.uc.cn"}, UC},
	{[]string{"xunlei", "thunder", "迅雷"}, Xunlei},
}

// Classify maps a URL's host to a provider tag. URLs without a host
// (bare domains parsed without a scheme) and hosts matching no table
// row classify as Unknown.
func Classify(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Unknown
	}

	host := strings.ToLower(u.Host)
	if host == "" {
		return Unknown
	}

	for _, row := range classifyTable {
		for _, key := range row.keys {
			if strings.Contains(host, key) {
				return row.tag
			}
		}
	}

	return Unknown
}

// ShortBrands maps provider tags (including the legacy 迅雷网盘 spelling)
// to the short brand names used in the distribution aggregate.
var ShortBrands = map[string]string{
	Quark:  "夸克",
	Aliyun: "阿里",
	Baidu:  "百度",
	Pan115: "115",
	Tianyi: "天翼",
	Pan123: "123",
	UC:     "UC",
	"迅雷网盘": "迅雷",
	Xunlei: "迅雷",
}

// ShortBrand collapses a display name to its short brand, passing
// unknown names through unchanged.
func ShortBrand(name string) string {
	if short, ok := ShortBrands[name]; ok {
		return short
	}

	return name
}

// BrandWords are the bare provider names stripped from descriptions.
var BrandWords = []string{"夸克", "迅雷", "百度", "UC", "阿里", "天翼", "115", "123云盘"}
