package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/extract"
)

func parseText(t *testing.T, text string) Result {
	t.Helper()

	return Parse(text, extract.FromText(text))
}

func TestParse_TitleAndLabeledLinks(t *testing.T) {
	text := "名称：示例剧\n" +
		"主链：https://pan.quark.cn/s/abc\n" +
		"备用：https://pan.baidu.com/s/xyz?pwd=0000\n" +
		"#示例 #剧"

	res := parseText(t, text)

	assert.Equal(t, "示例剧", res.Title)
	assert.ElementsMatch(t, []string{"示例", "剧"}, res.Tags)
	assert.Equal(t, domain.Links{
		"夸克网盘": {{Label: "主链", URL: "https://pan.quark.cn/s/abc"}},
		"百度网盘": {{Label: "备用", URL: "https://pan.baidu.com/s/xyz?pwd=0000"}},
	}, res.Links)
}

func TestParse_TitleFallsBackToFirstLine(t *testing.T) {
	res := parseText(t, "\n\n某部电影 2024\n描述第一行\nhttps://pan.quark.cn/s/abc")

	assert.Equal(t, "某部电影 2024", res.Title)
	assert.Equal(t, "描述第一行", res.Description)
}

func TestParse_EmptyInput(t *testing.T) {
	res := Parse("   \n\t\n", []string{"https://pan.quark.cn/s/abc"})

	assert.Empty(t, res.Title)
	assert.Empty(t, res.Links)
}

func TestParse_LabelRules(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		url   string
		label string
	}{
		{
			name:  "colon prefix longest match",
			text:  "名称：x\n高码版：https://pan.quark.cn/s/a",
			url:   "https://pan.quark.cn/s/a",
			label: "高码版",
		},
		{
			name:  "text before url suffix",
			text:  "名称：x\n点此 备用 https://pan.quark.cn/s/b",
			url:   "https://pan.quark.cn/s/b",
			label: "备用",
		},
		{
			name:  "short previous line",
			text:  "名称：x\n高码版\nhttps://pan.quark.cn/s/c",
			url:   "https://pan.quark.cn/s/c",
			label: "高码版",
		},
		{
			name:  "no label",
			text:  "名称：x\nhttps://pan.quark.cn/s/d",
			url:   "https://pan.quark.cn/s/d",
			label: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.text, []string{tt.url})
			require.Len(t, res.Links["夸克网盘"], 1)
			assert.Equal(t, tt.label, res.Links["夸克网盘"][0].Label)
		})
	}
}

func TestParse_DuplicateURLsWithinProvider(t *testing.T) {
	url := "https://pan.quark.cn/s/abc"
	res := Parse("名称：x\n"+url, []string{url, url})

	assert.Len(t, res.Links["夸克网盘"], 1)
}

func TestParse_HeaderLines(t *testing.T) {
	text := "名称：某剧\n" +
		"🎉 来自：资源组\n" +
		"📢 频道：panshare\n" +
		"👥 群组：讨论群\n" +
		"🤖 投稿：bothelper\n" +
		"⚠️ 本频道只做资源分享\n" +
		"正文描述"

	res := parseText(t, text)

	assert.Equal(t, "资源组", res.Source)
	assert.Equal(t, "panshare", res.Channel)
	assert.Equal(t, "讨论群", res.GroupName)
	assert.Equal(t, "bothelper", res.Bot)
	assert.Equal(t, "正文描述", res.Description)
}

func TestParse_SizeLines(t *testing.T) {
	kept := parseText(t, "名称：x\n大小：12.5GB 左右")
	assert.Contains(t, kept.Description, "大小")

	dropped := parseText(t, "名称：x\n大小：未知")
	assert.Empty(t, dropped.Description)
}

func TestParse_DescriptionFilters(t *testing.T) {
	text := "名称：x\n" +
		"链接：https://example.com/x\n" +
		"描述区域\n" +
		"分享：某某\n" +
		"网址：某某\n" +
		"🌍 群主自用机场 守候网络 9折活动\n" +
		"🔥 云盘播放神器 VidHub\n" +
		"@someone 推荐\n" +
		"标签：电影\n" +
		"正常的一行 via somebot\n" +
		"。。。\n" +
		"真实描述"

	res := parseText(t, text)

	assert.Equal(t, "正常的一行\n真实描述", res.Description)
}

func TestParse_TagsDedupPreservesOrder(t *testing.T) {
	res := parseText(t, "名称：x\n#剧集 #电影 #剧集 #动画")

	assert.Equal(t, []string{"剧集", "电影", "动画"}, res.Tags)
}

func TestParse_BrandWordsStrippedFromDescription(t *testing.T) {
	res := parseText(t, "名称：x\n夸克和百度都有资源：")

	assert.Equal(t, "和都有资源", res.Description)
}

func TestParse_Idempotent(t *testing.T) {
	text := "名称：示例剧\n" +
		"主链：https://pan.quark.cn/s/abc\n" +
		"一段描述\n#示例"

	first := parseText(t, text)

	render := "名称：" + first.Title + "\n" + first.Description + "\n"
	for provider, items := range first.Links {
		_ = provider
		for _, item := range items {
			render += item.Label + "：" + item.URL + "\n"
		}
	}
	for _, tag := range first.Tags {
		render += "#" + tag + " "
	}

	second := parseText(t, render)

	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Description, second.Description)
	assert.Equal(t, first.Links, second.Links)
	assert.ElementsMatch(t, first.Tags, second.Tags)
}

func TestLabelVocabularyContainsCoreEntries(t *testing.T) {
	vocab := LabelVocabulary()

	for _, want := range []string{"主链", "备用", "普码", "高码", "4K", "HDR", "杜比", "1080P", "导演版", "国语版"} {
		assert.Contains(t, vocab, want)
	}
}
