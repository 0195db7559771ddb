package parse

import "sort"

// labelVocabulary is the controlled set of variant annotations a link
// may carry. Matched by exact equality for prefix forms and by
// containment for short-line forms; kept as data so tests can cover it
// exhaustively.
var labelVocabulary = []string{
	"主链", "备用", "普码", "高码", "杜比",
	"4K", "HDR", "SDR", "1080P",
	"4K 120FPS", "4K HDR", "4K HQ", "4K EDR", "4K DV", "4K SDR", "4K 60FPS",
	"4K HQ 高码率", "4K HDR 60FPS", "4K HDR&DV",
	"4K 5.96G", "4K 14.9GB", "4K 8.5GB", "4K 24.1GB", "4K版",
	"1080P 5.96G", "1080P版",
	"前 42 集", "ATVP",
	"大包", "大包2", "大包3", "大包4", "大包5",
	"1号文件夹", "2号文件夹", "3号文件夹", "4号文件夹", "5号文件夹",
	"备用链", "备用链接", "普码版", "高码版", "标准版", "高清版",
	"HDR版", "杜比版", "完整版", "精简版",
	"导演版", "加长版", "国语版", "粤语版", "英语版", "多语版",
	"无删减", "剧场版", "特别版", "典藏版", "豪华版",
}

// vocabByLength is the vocabulary ordered longest first, so suffix and
// containment lookups resolve ambiguity deterministically.
var vocabByLength = func() []string {
	v := make([]string, len(labelVocabulary))
	copy(v, labelVocabulary)
	sort.SliceStable(v, func(i, j int) bool { return len(v[i]) > len(v[j]) })

	return v
}()

// LabelVocabulary returns a copy of the controlled label vocabulary.
func LabelVocabulary() []string {
	v := make([]string, len(labelVocabulary))
	copy(v, labelVocabulary)

	return v
}
