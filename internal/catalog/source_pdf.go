package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// loadPDF parses a tabular price sheet. Each page is reassembled into rows
// by grouping text fragments with the same vertical position; a row is
// accepted when it carries the seven catalog columns in order:
// id, name, color, category, price, final_price, stock.
func loadPDF(path string) ([]Product, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening price sheet: %w", err)
	}
	defer f.Close()

	var products []Product
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		for _, cells := range pageRows(page.Content().Text) {
			p, ok := rowToProduct(cells)
			if !ok {
				continue
			}
			products = append(products, p)
		}
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("price sheet %s contains no parseable rows", path)
	}
	return products, nil
}

// rowYTolerance groups fragments whose baselines differ by less than this
// many points into the same visual row.
const rowYTolerance = 2.0

// cellGap is the horizontal distance that separates two table cells.
const cellGap = 8.0

// pageRows reassembles positioned text fragments into rows of cell strings.
func pageRows(texts []pdf.Text) [][]string {
	sort.SliceStable(texts, func(i, j int) bool {
		if math.Abs(texts[i].Y-texts[j].Y) > rowYTolerance {
			return texts[i].Y > texts[j].Y // PDF y grows upward
		}
		return texts[i].X < texts[j].X
	})

	var rows [][]string
	var cells []string
	var cell strings.Builder
	lastY, lastEnd := math.Inf(1), math.Inf(-1)

	flushCell := func() {
		if s := strings.TrimSpace(cell.String()); s != "" {
			cells = append(cells, s)
		}
		cell.Reset()
	}
	flushRow := func() {
		flushCell()
		if len(cells) > 0 {
			rows = append(rows, cells)
			cells = nil
		}
	}

	for _, t := range texts {
		if math.Abs(t.Y-lastY) > rowYTolerance {
			flushRow()
			lastEnd = math.Inf(-1)
		} else if t.X-lastEnd > cellGap {
			flushCell()
		}
		cell.WriteString(t.S)
		lastY = t.Y
		lastEnd = t.X + t.W
	}
	flushRow()
	return rows
}

// rowToProduct converts one visual row into a Product. Header rows and
// decoration fail the numeric checks and are skipped.
func rowToProduct(cells []string) (Product, bool) {
	if len(cells) != 7 {
		return Product{}, false
	}
	price, err1 := strconv.ParseFloat(strings.ReplaceAll(cells[4], ",", "."), 64)
	final, err2 := strconv.ParseFloat(strings.ReplaceAll(cells[5], ",", "."), 64)
	stock, err3 := strconv.Atoi(cells[6])
	if err1 != nil || err2 != nil || err3 != nil {
		return Product{}, false
	}
	return Product{
		ID:         cells[0],
		Name:       cells[1],
		Color:      cells[2],
		Category:   cells[3],
		Price:      price,
		FinalPrice: final,
		Stock:      stock,
	}, true
}
