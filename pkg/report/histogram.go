package report

import (
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// DefaultBins is the number of log-spaced histogram bins.
const DefaultBins = 128

// Bin counts values v with Lower <= v+1 < Upper. The last bin includes Upper.
type Bin struct {
	Lower float64
	Upper float64
	Count int
}

// Label is the bin's lower edge in stars.
func (b Bin) Label() string {
	return humanize.Comma(int64(math.Round(b.Lower - 1)))
}

// Histogram bins stars+1 into n log-spaced bins between the smallest and
// largest shifted value.
func Histogram(stars []int64, n int) []Bin {
	if len(stars) == 0 || n < 1 {
		return nil
	}

	lo, hi := stars[0]+1, stars[0]+1
	for _, s := range stars[1:] {
		lo = min(lo, s+1)
		hi = max(hi, s+1)
	}
	if lo == hi {
		return []Bin{{Lower: float64(lo), Upper: float64(hi), Count: len(stars)}}
	}

	logLo, logHi := math.Log10(float64(lo)), math.Log10(float64(hi))
	step := (logHi - logLo) / float64(n)

	bins := make([]Bin, n)
	for i := range bins {
		bins[i].Lower = math.Pow(10, logLo+step*float64(i))
		bins[i].Upper = math.Pow(10, logLo+step*float64(i+1))
	}
	bins[0].Lower = float64(lo)
	bins[n-1].Upper = float64(hi)

	for _, s := range stars {
		i := int((math.Log10(float64(s+1)) - logLo) / step)
		bins[min(max(i, 0), n-1)].Count++
	}
	return bins
}

// binOf returns the index of the bin holding stars v.
func binOf(bins []Bin, v float64) int {
	shifted := v + 1
	for i, b := range bins {
		if shifted < b.Upper {
			return i
		}
	}
	return len(bins) - 1
}

// Chart builds a bar chart of bins with a marker line per cutoff.
func Chart(bins []Bin, cutoffs []Cutoff, total int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "GitHub star distribution",
			Subtitle: fmt.Sprintf("%s repositories", humanize.Comma(int64(total))),
			Left:     "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Number of stars"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Number of repositories", Type: "log"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)

	labels := make([]string, len(bins))
	data := make([]opts.BarData, len(bins))
	for i, b := range bins {
		labels[i] = b.Label()
		if b.Count > 0 {
			data[i] = opts.BarData{Value: b.Count}
		} else {
			data[i] = opts.BarData{Value: "-"}
		}
	}
	bar.SetXAxis(labels)

	marks := make([]opts.MarkLineNameXAxisItem, 0, len(cutoffs))
	for _, c := range cutoffs {
		if len(bins) == 0 {
			break
		}
		marks = append(marks, opts.MarkLineNameXAxisItem{
			Name:  fmt.Sprintf("%s stars → %s", humanize.Comma(int64(c.Stars)), c.Label()),
			XAxis: labels[binOf(bins, c.Stars)],
		})
	}

	bar.AddSeries("Repositories", data,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#0F4D92"}),
		charts.WithMarkLineNameXAxisItemOpts(marks...),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Label: &opts.Label{Show: opts.Bool(true), Formatter: "{b}"},
		}),
	)

	return bar
}

// WriteHTML renders the histogram page for stars to w.
func WriteHTML(w io.Writer, stars []int64) error {
	chart := Chart(Histogram(stars, DefaultBins), Cutoffs(stars), len(stars))
	return chart.Render(w)
}
