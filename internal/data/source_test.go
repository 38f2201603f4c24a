package data

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPreviewKeepsRunesWhole(t *testing.T) {
	short := "Service Unavailable"
	assert.Equal(t, short, preview([]byte(short)))

	// 119 ASCII bytes put the two-byte "é" across the cut.
	body := strings.Repeat("a", previewLen-1) + "éééé"
	got := preview([]byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", previewLen-1), got)

	multi := strings.Repeat("日本", 100)
	got = preview([]byte(multi))
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), previewLen)
	assert.True(t, strings.HasPrefix(multi, got))
}
