package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantURLs(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		display  string
		copyURL  string
		original string
	}{
		{
			name:     "large original",
			in:       "https://wx1.sinaimg.cn/large/abc.jpg",
			display:  "https://wx1.sinaimg.cn/bmiddle/abc.jpg",
			copyURL:  "https://wx1.sinaimg.cn/mw1024/abc.jpg",
			original: "https://wx1.sinaimg.cn/large/abc.jpg",
		},
		{
			name:     "thumbnail",
			in:       "https://wx2.sinaimg.cn/thumb150/x.gif",
			display:  "https://wx2.sinaimg.cn/bmiddle/x.gif",
			copyURL:  "https://wx2.sinaimg.cn/mw1024/x.gif",
			original: "https://wx2.sinaimg.cn/large/x.gif",
		},
		{
			name:     "no segment on known cdn inserts one",
			in:       "https://wx3.sinaimg.cn/abc.jpg",
			display:  "https://wx3.sinaimg.cn/bmiddle/abc.jpg",
			copyURL:  "https://wx3.sinaimg.cn/mw1024/abc.jpg",
			original: "https://wx3.sinaimg.cn/large/abc.jpg",
		},
		{
			name:     "unknown host left unchanged",
			in:       "https://images.other.org/pics/abc.jpg",
			display:  "https://images.other.org/pics/abc.jpg",
			copyURL:  "https://images.other.org/pics/abc.jpg",
			original: "https://images.other.org/pics/abc.jpg",
		},
		{
			name:     "segment only matched after host",
			in:       "https://cdn.other.org/img/large/abc.jpg",
			display:  "https://cdn.other.org/img/large/abc.jpg",
			copyURL:  "https://cdn.other.org/img/large/abc.jpg",
			original: "https://cdn.other.org/img/large/abc.jpg",
		},
		{
			name:     "query preserved",
			in:       "https://wx1.sinaimg.cn/orj360/abc.jpg?KID=imgbed",
			display:  "https://wx1.sinaimg.cn/bmiddle/abc.jpg?KID=imgbed",
			copyURL:  "https://wx1.sinaimg.cn/mw1024/abc.jpg?KID=imgbed",
			original: "https://wx1.sinaimg.cn/large/abc.jpg?KID=imgbed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.display, DisplayURL(tt.in))
			assert.Equal(t, tt.copyURL, CopyURL(tt.in))
			assert.Equal(t, tt.original, OriginalURL(tt.in))
		})
	}
}

func TestRewriteCustomTable(t *testing.T) {
	table, err := LoadVariants([]byte(`
segments = ["small", "big"]
[variants]
display = ["big", "small"]
`))
	require.NoError(t, err)

	assert.Equal(t, "https://h/big/a.jpg", table.Rewrite("https://h/small/a.jpg", "display"))
	assert.Equal(t, "https://h/big/a.jpg", table.Rewrite("https://h/big/a.jpg", "display"))
	assert.Equal(t, "https://h/nothing/a.jpg", table.Rewrite("https://h/nothing/a.jpg", "display"))
	assert.Equal(t, "https://h/small/a.jpg", table.Rewrite("https://h/small/a.jpg", "unknown"))
}

func TestSegment(t *testing.T) {
	seg, ok := Variants().Segment("https://wx1.sinaimg.cn/mw690/a.jpg")
	assert.True(t, ok)
	assert.Equal(t, "mw690", seg)

	_, ok = Variants().Segment("https://wx1.sinaimg.cn/a.jpg")
	assert.False(t, ok)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("Copy")
	require.NoError(t, err)
	assert.Equal(t, VariantCopy, v)

	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantDisplay, v)

	_, err = ParseVariant("huge")
	assert.Error(t, err)
}

func TestLoadVariantsRejectsEmpty(t *testing.T) {
	_, err := LoadVariants([]byte(`segments = []`))
	assert.Error(t, err)
}
