package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain text collapses whitespace",
			in:   "  Hello \n\n\t world  ",
			want: "Hello world",
		},
		{
			name: "script and style dropped",
			in:   `<p>Hi</p><script>alert("x")</script><style>p { color: red }</style>`,
			want: "Hi",
		},
		{
			name: "entities decoded",
			in:   "<p>Fish &amp; Chips</p>",
			want: "Fish & Chips",
		},
		{
			name: "paragraphs separated by one blank line",
			in:   "<p>a</p><p></p><p> </p><p>b</p>",
			want: "a\n\nb",
		},
		{
			name: "headings",
			in:   "<h1>Title</h1><p>Body</p><h2>Sub</h2><h3>Minor</h3><h4>Small</h4>",
			want: "# Title\n\nBody\n\n## Sub\n### Minor\nSmall",
		},
		{
			name: "empty heading leaves following text alone",
			in:   "<h1></h1><p>Dear customer</p>",
			want: "Dear customer",
		},
		{
			name: "heading with only an image without src",
			in:   "<h2><img alt=x></h2>Footer",
			want: "Footer",
		},
		{
			name: "empty list item leaves following text alone",
			in:   "<ul><li>a</li><li></li></ul><p>Regards</p>",
			want: "- a\n\nRegards",
		},
		{
			name: "empty ordered item does not consume a number",
			in:   "<ol><li>a</li><li> </li><li>b</li></ol>",
			want: "1. a\n2. b",
		},
		{
			name: "empty heading inside list item keeps item marker",
			in:   "<ul><li><h3></h3>text</li></ul>",
			want: "- text",
		},
		{
			name: "unordered list",
			in:   "<ul><li>one</li><li>two</li></ul>",
			want: "- one\n- two",
		},
		{
			name: "ordered lists restart numbering",
			in:   "<ol><li>a</li><li>b</li></ol><ol><li>c</li></ol>",
			want: "1. a\n2. b\n1. c",
		},
		{
			name: "ordered list start attribute",
			in:   `<ol start="3"><li>c</li><li>d</li></ol>`,
			want: "3. c\n4. d",
		},
		{
			name: "nested list numbering is per list",
			in:   "<ol><li>a<ul><li>x</li></ul></li><li>b</li></ol>",
			want: "1. a\n- x\n2. b",
		},
		{
			name: "link with text and href",
			in:   `<p>See <a href="https://example.com">the site</a> now</p>`,
			want: "See [the site](https://example.com) now",
		},
		{
			name: "link without href keeps text",
			in:   `<a>just text</a>`,
			want: "just text",
		},
		{
			name: "link without text dropped",
			in:   `<a href="https://example.com"> </a>`,
			want: "",
		},
		{
			name: "images rendered identically for every source kind",
			in:   `<img src="cid:logo@x" alt="Logo"><img src="data:image/png;base64,AAAA"><img src="https://example.com/a.png" alt="">`,
			want: "![Logo](cid:logo@x)![Image](data:image/png;base64,AAAA)![Image](https://example.com/a.png)",
		},
		{
			name: "image without src dropped",
			in:   `<p>x<img alt="nothing">y</p>`,
			want: "xy",
		},
		{
			name: "linked image",
			in:   `<a href="https://example.com"><img src="cid:banner" alt="Banner"></a>`,
			want: "[![Banner](cid:banner)](https://example.com)",
		},
		{
			name: "inline formatting lost",
			in:   "<p><b>bold</b> and <i>italic</i></p>",
			want: "bold and italic",
		},
		{
			name: "table flattened to text rows",
			in:   "<table><tr><td>a</td><td>b</td></tr><tr><td>c</td></tr></table>",
			want: "a b\nc",
		},
		{
			name: "line break",
			in:   "first<br>second",
			want: "first\nsecond",
		},
	}

	var c Converter
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Convert(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConvertFlatten(t *testing.T) {
	c := Converter{Flatten: true}

	got, err := c.Convert("<h1>T</h1><p>x</p><ul><li>a</li><li>b</li></ul>")
	require.NoError(t, err)
	assert.Equal(t, "# T x - a - b", got)

	got, err = c.Convert("no\n\ntags   here")
	require.NoError(t, err)
	assert.Equal(t, "no tags here", got)
}

func TestToMarkdown(t *testing.T) {
	var c Converter
	assert.Equal(t, "", c.ToMarkdown(""))
	assert.Equal(t, "", c.ToMarkdown("   "))
	assert.Equal(t, "[x](y)", c.ToMarkdown(`<a href="y">x</a>`))

	assert.NotPanics(t, func() {
		c.ToMarkdown("<div><p>unclosed <b>tags <ul><li>everywhere")
		c.ToMarkdown("</p></div>>>><<<")
	})
}
