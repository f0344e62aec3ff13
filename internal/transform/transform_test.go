package transform

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinceanalytics/pave/internal/failure"
)

func file(path, data string) *File {
	return &File{Path: path, Source: "/src/" + path, Data: []byte(data)}
}

func TestEach(t *testing.T) {
	upper := Each("upper", func(_ context.Context, f *File) (*File, error) {
		if f.Path == "skip.txt" {
			return nil, nil
		}
		return &File{Path: f.Path, Source: f.Source, Data: bytes.ToUpper(f.Data)}, nil
	})
	o, err := upper.Apply(context.Background(), []*File{file("a.txt", "a"), file("skip.txt", "s"), file("b.txt", "b")})
	require.NoError(t, err)
	require.Len(t, o, 2)
	require.Equal(t, "A", string(o[0].Data))
	require.Equal(t, "B", string(o[1].Data))
}

func TestEachClassifiesErrors(t *testing.T) {
	bad := Each("broken", func(_ context.Context, f *File) (*File, error) {
		return nil, errors.New("syntax error")
	})
	_, err := bad.Apply(context.Background(), []*File{file("a.scss", "")})
	require.True(t, failure.Is(err, failure.ErrTransform))
	f, _ := failure.As(err)
	require.Equal(t, "broken", f.Subject)
	require.Equal(t, "/src/a.scss", f.Source)
	require.EqualError(t, err, "transform broken rejected /src/a.scss: syntax error")
}

func TestChain(t *testing.T) {
	o, err := Chain(context.Background(),
		[]*File{file("a.css", "a {  color : red ; }"), file("b.css", "b { margin: 0px; }")},
		MinifyCSS(), Concat("styles.min.css"),
	)
	require.NoError(t, err)
	require.Len(t, o, 1)
	require.Equal(t, "styles.min.css", o[0].Path)
	require.Equal(t, "a{color:red}\nb{margin:0}", string(o[0].Data))

	o, err = Chain(context.Background(), nil, MinifyCSS(), Concat("styles.min.css"))
	require.NoError(t, err)
	require.Empty(t, o)
}

func TestMinifyHTML(t *testing.T) {
	o, err := MinifyHTML().Apply(context.Background(), []*File{
		file("index.html", "<html>\n  <body>\n    <!-- note -->\n    <p>  hello   world </p>\n  </body>\n</html>\n"),
	})
	require.NoError(t, err)
	require.NotContains(t, string(o[0].Data), "note")
	require.Contains(t, string(o[0].Data), "hello world")
	require.NotContains(t, string(o[0].Data), "\n")
}

func TestTranspile(t *testing.T) {
	o, err := Transpile("es2015").Apply(context.Background(), []*File{
		file("main.js", "const depth = config?.nested?.depth ?? 1;\nconsole.log(depth ** 2);\n"),
	})
	require.NoError(t, err)
	out := string(o[0].Data)
	require.NotContains(t, out, "?.")
	require.NotContains(t, out, "??")
	require.NotContains(t, out, "**")
	require.NotContains(t, out, "\n\n")

	_, err = Transpile("es2015").Apply(context.Background(), []*File{file("bad.js", "let = ;")})
	require.True(t, failure.Is(err, failure.ErrTransform))
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "partials"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partials", "head.html"),
		[]byte(`<title>@@title</title>@@include('meta.html', {"page": {"lang": "en"}})`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partials", "meta.html"),
		[]byte(`<meta lang="@@page.lang"> @@unknown`), 0600))
	src := filepath.Join(dir, "index.html")
	data := `<head>@@include("partials/head.html", {
		"title": "Home"
	})</head>`
	o, err := Include().Apply(context.Background(), []*File{{Path: "index.html", Source: src, Data: []byte(data)}})
	require.NoError(t, err)
	require.Equal(t, `<head><title>Home</title><meta lang="en"> @@unknown</head>`, string(o[0].Data))
}

func TestIncludeErrors(t *testing.T) {
	dir := t.TempDir()
	loop := filepath.Join(dir, "loop.html")
	require.NoError(t, os.WriteFile(loop, []byte(`@@include('loop.html')`), 0600))
	cases := map[string]string{
		"missing file":  `@@include('nope.html')`,
		"no quote":      `@@include(nope.html)`,
		"bad context":   `@@include('loop.html', {"a": })`,
		"unterminated":  `@@include('loop.html'`,
		"include cycle": `@@include('loop.html')`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Include().Apply(context.Background(), []*File{
				{Path: "index.html", Source: filepath.Join(dir, "index.html"), Data: []byte(data)},
			})
			require.True(t, failure.Is(err, failure.ErrTransform))
		})
	}
}

func TestSprite(t *testing.T) {
	o, err := Sprite("sprite.svg").Apply(context.Background(), []*File{
		file("svg-for-sprite/arrow.svg", `<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><path d="M0 0L10 10"/></svg>`),
		file("svg-for-sprite/dot.svg", `<svg width="4" height="4"><g><circle r="2"/></g></svg>`),
		file("svg-for-sprite/readme.txt", `ignored`),
	})
	require.NoError(t, err)
	require.Len(t, o, 1)
	require.Equal(t, "sprite.svg", o[0].Path)
	s := string(o[0].Data)
	require.Contains(t, s, `<svg viewBox="0 0 10 10" id="arrow"><path d="M0 0L10 10"/></svg>`)
	require.Contains(t, s, `<svg viewBox="0 0 4 4" width="4" height="4" id="dot"><g><circle r="2"/></g></svg>`)
	require.Contains(t, s, spriteStyle)

	o, err = Sprite("sprite.svg").Apply(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, o)

	_, err = Sprite("sprite.svg").Apply(context.Background(), []*File{file("x.svg", `<svg><path/>`)})
	require.True(t, failure.Is(err, failure.ErrTransform))
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	m := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			m.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var b bytes.Buffer
	require.NoError(t, (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&b, m))
	return b.Bytes()
}

func TestOptimize(t *testing.T) {
	raw := testPNG(t)
	o, err := Each("imagemin", Optimize(75)).Apply(context.Background(), []*File{
		{Path: "a.png", Data: raw},
		{Path: "notes.txt", Data: []byte("keep")},
		{Path: "icon.svg", Data: []byte(`<svg xmlns="http://www.w3.org/2000/svg">  <path d="M 0 0 L 10 10"/>  </svg>`)},
	})
	require.NoError(t, err)
	require.Len(t, o, 3)
	require.Less(t, len(o[0].Data), len(raw))
	_, err = png.Decode(bytes.NewReader(o[0].Data))
	require.NoError(t, err)
	require.Equal(t, "keep", string(o[1].Data))
	require.NotContains(t, string(o[2].Data), "  ")

	_, err = Each("imagemin", Optimize(75)).Apply(context.Background(), []*File{{Path: "b.jpg", Data: []byte("not a jpeg")}})
	require.True(t, failure.Is(err, failure.ErrTransform))
}

func TestWebP(t *testing.T) {
	o, err := Each("webp", WebP(75)).Apply(context.Background(), []*File{
		{Path: "photos/a.png", Data: testPNG(t)},
		{Path: "icon.svg", Data: []byte("<svg/>")},
	})
	require.NoError(t, err)
	require.Len(t, o, 1)
	require.Equal(t, "photos/a.webp", o[0].Path)
	require.Equal(t, "RIFF", string(o[0].Data[:4]))
	require.Equal(t, "WEBP", string(o[0].Data[8:12]))
}

func TestMemo(t *testing.T) {
	c, err := NewCache(8)
	require.NoError(t, err)
	calls := 0
	a := Memo(c, "count", func(_ context.Context, f *File) (*File, error) {
		calls++
		return f, nil
	})
	in := []*File{file("a.png", "1"), file("b.png", "2")}
	_, err = a.Apply(context.Background(), in)
	require.NoError(t, err)
	_, err = a.Apply(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, c.Len())

	_, err = a.Apply(context.Background(), []*File{file("a.png", "changed")})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestSass(t *testing.T) {
	if _, err := exec.LookPath("sass"); err != nil {
		t.Skip("sass is not installed")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_vars.scss"), []byte("$c: red;"), 0600))
	o, err := Sass("sass").Apply(context.Background(), []*File{
		{Path: "_vars.scss", Source: filepath.Join(dir, "_vars.scss"), Data: []byte("$c: red;")},
		{Path: "a.scss", Source: filepath.Join(dir, "a.scss"), Data: []byte("@use 'vars';\na { b { color: vars.$c; } }")},
	})
	require.NoError(t, err)
	require.Len(t, o, 1)
	require.Equal(t, "a.css", o[0].Path)
	require.Equal(t, "a b{color:red}", string(bytes.TrimSpace(o[0].Data)))

	_, err = Sass("sass").Apply(context.Background(), []*File{file("bad.scss", "a { color: ")})
	require.True(t, failure.Is(err, failure.ErrTransform))
}
