package netdisk

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "quark share",
			url:  "https://pan.quark.cn/s/abc123",
			want: Quark,
		},
		{
			name: "baidu share",
			url:  "https://pan.baidu.com/s/xyz?pwd=0000",
			want: Baidu,
		},
		{
			name: "alipan",
			url:  "https://www.alipan.com/s/q2QX6AGdJm5",
			want: Aliyun,
		},
		{
			name: "aliyundrive",
			url:  "https://www.aliyundrive.com/s/abc",
			want: Aliyun,
		},
		{
			name: "115 exact domain",
			url:  "https://115.com/s/sw1abc",
			want: Pan115,
		},
		{
			name: "lax 115 substring",
			url:  "https://foo115bar.example.com/x",
			want: Pan115,
		},
		{
			name: "tianyi",
			url:  "https://cloud.189.cn/t/abc",
			want: Tianyi,
		},
		{
			name: "123pan",
			url:  "https://www.123pan.com/s/abc",
			want: Pan123,
		},
		{
			name: "uc drive",
			url:  "https://drive.uc.cn/s/abc",
			want: UC,
		},
		{
			name: "xunlei",
			url:  "https://pan.xunlei.com/s/abc",
			want: Xunlei,
		},
		{
			name: "unrelated host",
			url:  "https://example.com/page",
			want: Unknown,
		},
		{
			name: "bare domain without scheme has no host",
			url:  "pan.quark.cn/s/abc",
			want: Unknown,
		},
		{
			name: "invalid url",
			url:  "http://%zz",
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.url); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// quark row precedes the lax 123 substring row
	if got := Classify("https://quark123.example.com/s/x"); got != Quark {
		t.Errorf("Classify() = %q, want %q", got, Quark)
	}
}

func TestShortBrand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{Quark, "夸克"},
		{"迅雷网盘", "迅雷"},
		{Xunlei, "迅雷"},
		{Pan123, "123"},
		{"奇怪网盘", "奇怪网盘"},
	}

	for _, tt := range tests {
		if got := ShortBrand(tt.in); got != tt.want {
			t.Errorf("ShortBrand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
