// Package layout orders the text blocks of a page into reading order.
//
// Everything here is a pure function over block geometry so that column detection can be
// exercised with synthetic block lists.
package layout

import (
	"math"
	"sort"
	"strings"

	"github.com/xhad/ackaudit/internal/models"
)

type LayoutConfig struct {
	// ColumnGap is the minimum horizontal distance between the two most populated
	// left-edge clusters for a page to be read as two columns.
	ColumnGap float64
	// ClusterTolerance is the largest gap between sorted left edges that still belongs
	// to the same cluster (paragraph indents, ragged starts).
	ClusterTolerance float64
	// MinColumnBlocks is the number of blocks the larger cluster needs to count as a
	// column. A sparser cluster still counts when its blocks clear the other column's
	// right edge.
	MinColumnBlocks int
	// RowPrecision rounds top edges before sorting so blocks on one baseline order by x.
	RowPrecision float64
}

func DefaultConfig() LayoutConfig {
	return LayoutConfig{
		ColumnGap:        40,
		ClusterTolerance: 12,
		MinColumnBlocks:  2,
		RowPrecision:     0.1,
	}
}

func (c LayoutConfig) withDefaults() LayoutConfig {
	d := DefaultConfig()
	if c.ColumnGap <= 0 {
		c.ColumnGap = d.ColumnGap
	}
	if c.ClusterTolerance <= 0 {
		c.ClusterTolerance = d.ClusterTolerance
	}
	if c.MinColumnBlocks <= 0 {
		c.MinColumnBlocks = d.MinColumnBlocks
	}
	if c.RowPrecision <= 0 {
		c.RowPrecision = d.RowPrecision
	}
	return c
}

// Cluster is a group of nearby left edges.
type Cluster struct {
	Min, Max float64
	Center   float64
	Size     int
}

// ClusterLeftEdges groups x positions, splitting the sorted list wherever two neighbours
// are more than tolerance apart.
func ClusterLeftEdges(xs []float64, tolerance float64) []Cluster {
	if len(xs) == 0 {
		return nil
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	var clusters []Cluster
	start := 0
	flush := func(end int) {
		group := sorted[start:end]
		sum := 0.0
		for _, x := range group {
			sum += x
		}
		clusters = append(clusters, Cluster{
			Min:    group[0],
			Max:    group[len(group)-1],
			Center: sum / float64(len(group)),
			Size:   len(group),
		})
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] > tolerance {
			flush(i)
			start = i
		}
	}
	flush(len(sorted))
	return clusters
}

// DetectColumns reports whether the blocks form two columns and, if so, the left and
// right clusters ordered by position.
func DetectColumns(blocks []models.TextBlock, cfg LayoutConfig) (left, right Cluster, twoColumns bool) {
	cfg = cfg.withDefaults()
	xs := make([]float64, len(blocks))
	for i, b := range blocks {
		xs[i] = b.BBox.X0
	}
	clusters := ClusterLeftEdges(xs, cfg.ClusterTolerance)
	if len(clusters) < 2 {
		return Cluster{}, Cluster{}, false
	}

	// Two most populated clusters; ties keep the leftmost.
	ranked := append([]Cluster(nil), clusters...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Size > ranked[j].Size })
	a, b := ranked[0], ranked[1]
	if a.Center > b.Center {
		a, b = b, a
	}
	if max(a.Size, b.Size) < cfg.MinColumnBlocks {
		return a, b, false
	}
	if b.Min-a.Max <= cfg.ColumnGap {
		return a, b, false
	}
	if min(a.Size, b.Size) < cfg.MinColumnBlocks && rightEdge(blocks, a) > b.Min {
		return a, b, false
	}
	return a, b, true
}

// rightEdge is the largest right edge among blocks whose left edge falls in c.
func rightEdge(blocks []models.TextBlock, c Cluster) float64 {
	edge := c.Max
	for _, b := range blocks {
		if b.BBox.X0 >= c.Min && b.BBox.X0 <= c.Max && b.BBox.X1 > edge {
			edge = b.BBox.X1
		}
	}
	return edge
}

// Reading is a page's blocks in reading order. Blocks[:Split] is the left column when
// Columns is 2.
type Reading struct {
	Blocks  []models.TextBlock
	Columns int
	Split   int
}

// Order sorts blocks into reading order. Single column: top to bottom. Two columns: the
// left column top to bottom, then the right one. Blocks wholly on one side of the page
// midpoint go to that side; blocks that straddle it go to the cluster whose centre is
// nearest their left edge.
func Order(blocks []models.TextBlock, pageWidth float64, cfg LayoutConfig) Reading {
	cfg = cfg.withDefaults()
	out := append([]models.TextBlock(nil), blocks...)
	sortTopLeft(out, cfg.RowPrecision)

	left, right, two := DetectColumns(out, cfg)
	if !two {
		return Reading{Blocks: out, Columns: 1, Split: len(out)}
	}

	mid := pageWidth / 2
	if mid <= 0 {
		mid = (left.Center + right.Center) / 2
	}
	var lcol, rcol []models.TextBlock
	for _, b := range out {
		switch {
		case b.BBox.X1 <= mid:
			lcol = append(lcol, b)
		case b.BBox.X0 >= mid:
			rcol = append(rcol, b)
		case math.Abs(b.BBox.X0-left.Center) <= math.Abs(b.BBox.X0-right.Center):
			lcol = append(lcol, b)
		default:
			rcol = append(rcol, b)
		}
	}
	return Reading{Blocks: append(lcol, rcol...), Columns: 2, Split: len(lcol)}
}

func sortTopLeft(blocks []models.TextBlock, precision float64) {
	round := func(v float64) float64 { return math.Round(v/precision) * precision }
	sort.SliceStable(blocks, func(i, j int) bool {
		yi, yj := round(blocks[i].BBox.Y0), round(blocks[j].BBox.Y0)
		if yi != yj {
			return yi < yj
		}
		return round(blocks[i].BBox.X0) < round(blocks[j].BBox.X0)
	})
}

// Text joins the block texts. Columns are separated by a blank line.
func (r Reading) Text() string {
	join := func(blocks []models.TextBlock) string {
		var parts []string
		for _, b := range blocks {
			if t := NormalizeWhitespace(b.Text); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	if r.Columns < 2 {
		return strings.TrimSpace(join(r.Blocks))
	}
	return strings.TrimSpace(join(r.Blocks[:r.Split]) + "\n\n" + join(r.Blocks[r.Split:]))
}

// NormalizeWhitespace collapses runs of spaces and tabs, keeping line breaks.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			kept = append(kept, ln)
		}
	}
	return strings.Join(kept, "\n")
}
