package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testFrame(points ...float32) Frame {
	yMin, yMax := YRange(points)
	return Frame{
		Title:   Title,
		Heading: Title,
		Plot: Plot{
			Name:      PlotName,
			Points:    points,
			YMin:      yMin,
			YMax:      yMax,
			Color:     LineColor,
			Highlight: true,
			Legend:    true,
		},
	}
}

func TestTerminalRendererLayout(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalRenderer(&buf).WithSize(40, 14).WithoutColor()

	require.NoError(t, r.Render(testFrame(15, 30)))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")

	require.Len(t, lines, 14)
	require.Equal(t, Title, strings.TrimSpace(lines[0]))
	require.Equal(t, Title, lines[1])

	// Y ticks at the top and bottom of the range
	require.True(t, strings.HasPrefix(lines[2], "   30.0 ┤"), lines[2])
	require.True(t, strings.HasPrefix(lines[11], "   15.0 ┤"), lines[11])

	// First sample at the bottom left, last at the top right
	require.True(t, strings.HasPrefix(lines[11], "   15.0 ┤●"), lines[11])
	require.True(t, strings.HasSuffix(lines[2], "●"), lines[2])

	require.Contains(t, lines[13], "━━ temperature")
	require.NotContains(t, buf.String(), "\x1b[")
}

func TestTerminalRendererEmptyWindow(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalRenderer(&buf).WithSize(40, 14).WithoutColor()

	require.NoError(t, r.Render(testFrame()))
	require.NotContains(t, buf.String(), string(cellPoint))
	require.Contains(t, buf.String(), "temperature")
}

func TestRasterize(t *testing.T) {
	grid := rasterize(Plot{Points: []float32{0, 10}, YMin: 0, YMax: 10}, 5, 5)

	require.Equal(t, []string{
		"    ●",
		"   · ",
		"  ·  ",
		" ·   ",
		"●    ",
	}, func() []string {
		var res []string
		for _, row := range grid {
			res = append(res, string(row))
		}
		return res
	}())
}
