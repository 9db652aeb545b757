package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnglish(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"plain english", "The quick brown fox jumps over the lazy dog.", true},
		{"japanese", "新しい製品を発表しました。詳細はこちら。", false},
		{"empty", "", false},
		{"digits and punctuation only", "2026-08-24 12:00 ---", false},
		{"url only", "https://example.com/path?q=1", false},
		{"english with urls", "Read the announcement at https://例え.jp/ニュース today.", true},
		{"mostly japanese with a little english", "お知らせ: new item あります。商品は明日から販売開始です。", false},
		// Known limit of the ratio heuristic: any mostly-ASCII latin
		// script passes, not just English.
		{"latin script passes the ratio", "Ceci est entièrement rédigé en français, vérité établie, déjà vu, où ça?", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, English(tt.in))
		})
	}
}
