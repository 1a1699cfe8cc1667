package display

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const (

	// The logical 600x400 canvas mapped to character cells
	defaultColumns = 75
	defaultRows    = 25

	minPlotRows    = 5
	minPlotColumns = 10
	yLabelWidth    = 8
	yTickEvery     = 4

	clearScreen = "\x1b[H\x1b[2J"
)

// TerminalRenderer draws frames as a character-cell line plot. There is no
// native window: the 600x400 plot size is only a logical canvas of 8x16
// pixel cells (75x25 characters), used when the output is not a terminal.
// On a terminal the plot fills its current size
type TerminalRenderer struct {
	w       io.Writer
	fd      int
	columns int
	rows    int
	clear   bool
	plain   bool

	title *color.Color
	line  *color.Color
	point *color.Color
	axis  *color.Color
}

// NewTerminalRenderer instantiates a renderer writing to w. If w is a
// terminal the plot is sized to fit it
func NewTerminalRenderer(w io.Writer) *TerminalRenderer {
	r := &TerminalRenderer{
		w:     w,
		fd:    -1,
		title: color.New(color.Bold),
		axis:  color.New(color.Faint),
	}
	r.setLineColor(LineColor, true)

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.fd = int(f.Fd())
		r.clear = true
	}

	return r
}

// WithSize fixes the size of the rendered frame (in character cells)
func (r *TerminalRenderer) WithSize(columns, rows int) *TerminalRenderer {
	r.columns, r.rows = columns, rows
	return r
}

// WithoutColor disables all escape sequences
func (r *TerminalRenderer) WithoutColor() *TerminalRenderer {
	for _, c := range []*color.Color{r.title, r.line, r.point, r.axis} {
		c.DisableColor()
	}
	r.clear = false
	r.plain = true
	return r
}

// Render draws a single frame
func (r *TerminalRenderer) Render(frame Frame) error {
	if frame.Plot.Color != LineColor {
		r.setLineColor(frame.Plot.Color, frame.Plot.Highlight)
	}

	columns, rows := r.size()
	plotRows := max(rows-4, minPlotRows)
	plotColumns := max(columns-yLabelWidth-1, minPlotColumns)

	var b strings.Builder
	if r.clear {
		b.WriteString(clearScreen)
	}

	pad := max((columns-len(frame.Title))/2, 0)
	b.WriteString(strings.Repeat(" ", pad) + r.title.Sprint(frame.Title) + "\n")
	b.WriteString(r.title.Sprint(frame.Heading) + "\n")

	grid := rasterize(frame.Plot, plotColumns, plotRows)
	for row, cells := range grid {
		b.WriteString(r.yLabel(frame.Plot, row, plotRows))
		for _, cell := range cells {
			switch cell {
			case cellPoint:
				b.WriteString(r.point.Sprint(string(cellPoint)))
			case cellLine:
				b.WriteString(r.line.Sprint(string(cellLine)))
			default:
				b.WriteRune(cell)
			}
		}
		b.WriteString("\n")
	}

	// No X axis ticks, only a baseline
	b.WriteString(strings.Repeat(" ", yLabelWidth) + r.axis.Sprint("└"+strings.Repeat("─", plotColumns)) + "\n")

	if frame.Plot.Legend {
		b.WriteString(strings.Repeat(" ", yLabelWidth+1) + r.line.Sprint("━━") + " " + frame.Plot.Name + "\n")
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

////////////////////////////////////////////////////////////////////////////////

const (
	cellEmpty = ' '
	cellLine  = '·'
	cellPoint = '●'
)

func (r *TerminalRenderer) setLineColor(c RGB, highlight bool) {
	r.line = color.RGB(int(c.R), int(c.G), int(c.B))
	r.point = color.RGB(int(c.R), int(c.G), int(c.B))
	if highlight {
		r.point.Add(color.Bold)
	}
	if r.plain {
		r.line.DisableColor()
		r.point.DisableColor()
	}
}

func (r *TerminalRenderer) size() (int, int) {
	if r.columns > 0 && r.rows > 0 {
		return r.columns, r.rows
	}
	if r.fd >= 0 {
		if columns, rows, err := term.GetSize(r.fd); err == nil && columns > 0 && rows > 0 {
			return columns, rows - 1
		}
	}
	return defaultColumns, defaultRows
}

func (r *TerminalRenderer) yLabel(plot Plot, row, rows int) string {
	if row%yTickEvery != 0 && row != rows-1 {
		return strings.Repeat(" ", yLabelWidth) + r.axis.Sprint("│")
	}
	value := plot.YMax - (plot.YMax-plot.YMin)*float64(row)/float64(rows-1)
	return fmt.Sprintf("%*.1f ", yLabelWidth-1, value) + r.axis.Sprint("┤")
}

// rasterize maps the plot points onto a grid of cells, joining consecutive
// points by straight segments
func rasterize(plot Plot, columns, rows int) [][]rune {
	grid := make([][]rune, rows)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(string(cellEmpty), columns))
	}

	n := len(plot.Points)
	if n == 0 || plot.YMax <= plot.YMin {
		return grid
	}

	toCell := func(i int, v float32) (int, int) {
		x := 0
		if n > 1 {
			x = int(math.Round(float64(i) * float64(columns-1) / float64(n-1)))
		}
		y := int(math.Round((plot.YMax - float64(v)) / (plot.YMax - plot.YMin) * float64(rows-1)))
		return x, min(max(y, 0), rows-1)
	}

	for i := 1; i < n; i++ {
		x0, y0 := toCell(i-1, plot.Points[i-1])
		x1, y1 := toCell(i, plot.Points[i])
		for x := x0 + 1; x < x1; x++ {
			y := y0 + int(math.Round(float64((y1-y0)*(x-x0))/float64(x1-x0)))
			grid[y][x] = cellLine
		}
	}
	for i, v := range plot.Points {
		x, y := toCell(i, v)
		grid[y][x] = cellPoint
	}

	return grid
}
