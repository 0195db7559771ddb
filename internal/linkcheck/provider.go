package linkcheck

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Providers as named by the probe engine. Unknown hosts fall back to
// ProviderUnknown, which carries the most conservative limits.
const (
	ProviderBaidu   = "百度网盘"
	ProviderQuark   = "夸克网盘"
	ProviderAliyun  = "阿里云盘"
	Provider115     = "115网盘"
	ProviderTianyi  = "天翼云盘"
	Provider123     = "123云盘"
	ProviderUC      = "UC网盘"
	ProviderXunlei  = "迅雷网盘"
	ProviderUnknown = "未知网盘"
)

// Limits bounds how aggressively one provider may be probed.
type Limits struct {
	MaxConcurrent int
	DelayMin      time.Duration
	DelayMax      time.Duration
}

var providerLimits = map[string]Limits{
	ProviderBaidu:   {MaxConcurrent: 3, DelayMin: 1 * time.Second, DelayMax: 3 * time.Second},
	ProviderQuark:   {MaxConcurrent: 5, DelayMin: 500 * time.Millisecond, DelayMax: 2 * time.Second},
	ProviderAliyun:  {MaxConcurrent: 4, DelayMin: 1 * time.Second, DelayMax: 2500 * time.Millisecond},
	Provider115:     {MaxConcurrent: 2, DelayMin: 2 * time.Second, DelayMax: 4 * time.Second},
	ProviderTianyi:  {MaxConcurrent: 3, DelayMin: 1 * time.Second, DelayMax: 3 * time.Second},
	Provider123:     {MaxConcurrent: 3, DelayMin: 1 * time.Second, DelayMax: 2 * time.Second},
	ProviderUC:      {MaxConcurrent: 3, DelayMin: 1 * time.Second, DelayMax: 2 * time.Second},
	ProviderXunlei:  {MaxConcurrent: 3, DelayMin: 1 * time.Second, DelayMax: 2 * time.Second},
	ProviderUnknown: {MaxConcurrent: 2, DelayMin: 2 * time.Second, DelayMax: 4 * time.Second},
}

// LimitsFor returns the probe limits for a provider, falling back to
// the unknown-provider limits.
func LimitsFor(provider string) Limits {
	if l, ok := providerLimits[provider]; ok {
		return l
	}

	return providerLimits[ProviderUnknown]
}

var providerHosts = map[string]string{
	"pan.baidu.com":       ProviderBaidu,
	"pan.quark.cn":        ProviderQuark,
	"www.alipan.com":      ProviderAliyun,
	"www.aliyundrive.com": ProviderAliyun,
	"115.com":             Provider115,
	"115cdn.com":          Provider115,
	"cloud.189.cn":        ProviderTianyi,
	"www.123684.com":      Provider123,
	"www.123pan.com":      Provider123,
	"drive.uc.cn":         ProviderUC,
	"pan.xunlei.com":      ProviderXunlei,
}

// DetectProvider maps a URL host to its provider by exact match. Unlike
// the lax ingest-time classifier, probing cares only about the hosts it
// knows how to rate-limit; anything else is 未知网盘.
func DetectProvider(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ProviderUnknown
	}

	if p, ok := providerHosts[strings.ToLower(u.Hostname())]; ok {
		return p
	}

	return ProviderUnknown
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}

	return out
}

var commonInvalidPatterns = compileAll("文件不存在", "分享已失效", "链接已过期", "文件已被删除")

// providerInvalidPatterns holds the dead-share phrases each provider's
// error page is known to render.
var providerInvalidPatterns = map[string][]*regexp.Regexp{
	ProviderBaidu: compileAll(
		"文件不存在", "分享已失效", "链接已过期", "分享链接已失效",
		"文件已被删除", "分享已取消", "访问被拒绝",
	),
	ProviderQuark: compileAll(
		"文件不存在或已被删除", "分享链接已失效", "文件已被删除",
		"分享已过期", "访问被拒绝",
	),
	ProviderAliyun: commonInvalidPatterns,
	Provider115:    commonInvalidPatterns,
	ProviderTianyi: commonInvalidPatterns,
	Provider123:    commonInvalidPatterns,
	ProviderUC:     commonInvalidPatterns,
	ProviderXunlei: commonInvalidPatterns,
}

var generalInvalidPatterns = compileAll(
	"页面不存在", "访问被拒绝", "服务器错误",
	"页面未找到", "无法访问", "连接超时",
	`404\s*错误`, `404\s*页面`, `404\s*not\s*found`,
)
