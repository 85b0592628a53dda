package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series is a named line in a profile plot. NaN values are gaps.
type Series struct {
	Name   string
	Values []float64
}

const (
	defaultPlotHeight   = 8
	minPlotWidth        = 10
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

var colorPalette = []string{
	"\x1b[36m", // cyan
	"\x1b[35m", // magenta
	"\x1b[33m", // yellow
	"\x1b[32m", // green
	"\x1b[34m", // blue
}

// PlotSeries draws every series on one shared scale in braille dots. A
// non-positive width fits the terminal; a non-positive height uses the
// default.
func PlotSeries(w io.Writer, title, unit string, series []Series, width, height int, useColor bool) error {
	series = filterSeries(series)
	if len(series) == 0 {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	minVal, maxVal := seriesRange(series)
	top := fmt.Sprintf("%.0f%s", maxVal, unit)
	bottom := fmt.Sprintf("%.0f%s", minVal, unit)
	axisWidth := max(runewidth.StringWidth(top), runewidth.StringWidth(bottom))
	if width <= 0 {
		width = PlotWidthFor(terminalWidth(), axisWidth)
	}

	grids := make([][][]uint8, len(series))
	for i, s := range series {
		grids[i] = plotGrid(s.Values, minVal, maxVal, width, height)
	}

	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for y := 0; y < height; y++ {
		label := ""
		switch y {
		case 0:
			label = top
		case height - 1:
			label = bottom
		}
		var row strings.Builder
		row.WriteString(runewidth.FillLeft(label, axisWidth))
		row.WriteString(axisSeparator)
		for x := 0; x < width; x++ {
			mask, owner := composeCell(grids, x, y)
			ch := rune(0x2800 + int(mask))
			if useColor && owner >= 0 {
				row.WriteString(colorPalette[owner%len(colorPalette)])
				row.WriteRune(ch)
				row.WriteString(colorReset)
				continue
			}
			row.WriteRune(ch)
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, renderLegend(series, useColor))
	return err
}

// PlotWidthFor returns the plot width that fits next to an axis of the
// given width.
func PlotWidthFor(totalWidth, axisWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	return max(totalWidth-axisWidth-runewidth.StringWidth(axisSeparator), minPlotWidth)
}

// ShouldUseColor reports whether w is a terminal that accepts ANSI colors.
func ShouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func filterSeries(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		for _, v := range s.Values {
			if !math.IsNaN(v) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func seriesRange(series []Series) (float64, float64) {
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if maxVal-minVal < 1e-9 {
		maxVal = minVal + 1
	}
	return minVal, maxVal
}

// plotGrid maps values onto a width x height cell grid; each cell holds 2x4
// braille dots. Consecutive points are joined unless a gap separates them.
func plotGrid(values []float64, minVal, maxVal float64, width, height int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := range cells {
		cells[y] = make([]uint8, width)
	}
	dotsW, dotsH := width*2, height*4
	n := len(values)
	xOf := func(i int) int {
		if n == 1 {
			return 0
		}
		return int(math.Round(float64(i) * float64(dotsW-1) / float64(n-1)))
	}
	yOf := func(v float64) int {
		pos := (v - minVal) / (maxVal - minVal)
		return min(max(int(math.Round((1-pos)*float64(dotsH-1))), 0), dotsH-1)
	}
	prevX, prevY, havePrev := 0, 0, false
	for i, v := range values {
		if math.IsNaN(v) {
			havePrev = false
			continue
		}
		x, y := xOf(i), yOf(v)
		if havePrev {
			drawLine(prevX, prevY, x, y, func(px, py int) { setBrailleDot(cells, px, py) })
		} else {
			setBrailleDot(cells, x, y)
		}
		prevX, prevY, havePrev = x, y, true
	}
	return cells
}

func composeCell(grids [][][]uint8, x, y int) (uint8, int) {
	var mask uint8
	owner := -1
	for i, cells := range grids {
		m := cells[y][x]
		if m == 0 {
			continue
		}
		if owner == -1 {
			owner = i
		}
		mask |= m
	}
	return mask, owner
}

func renderLegend(series []Series, useColor bool) string {
	parts := make([]string, 0, len(series))
	for i, s := range series {
		label := "⠁ " + s.Name
		if useColor {
			label = colorPalette[i%len(colorPalette)] + label + colorReset
		}
		parts = append(parts, label)
	}
	return "Legend: " + strings.Join(parts, "  ")
}

// drawLine walks a Bresenham line between two dot coordinates.
func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// brailleBits indexes dot masks by [column][row] within a cell.
var brailleBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func setBrailleDot(cells [][]uint8, x, y int) {
	cellY, cellX := y/4, x/2
	if x < 0 || y < 0 || cellY >= len(cells) || cellX >= len(cells[cellY]) {
		return
	}
	cells[cellY][cellX] |= brailleBits[x%2][y%4]
}
