package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSource loads a catalog from a merchant-supplied file. JSON is the
// primary format; CSV and PDF price sheets are accepted because that is what
// boutiques actually send.
type FileSource struct {
	Path string
}

// Load dispatches on the file extension.
func (s FileSource) Load(ctx context.Context) ([]Product, error) {
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".json":
		return loadJSON(s.Path)
	case ".csv":
		return loadCSV(s.Path)
	case ".pdf":
		return loadPDF(s.Path)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(s.Path))
	}
}

func loadJSON(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	// Unknown fields are ignored by encoding/json by default.
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parsing catalog JSON: %w", err)
	}
	return products, nil
}

// loadCSV expects a header row; column names match the JSON field names.
func loadCSV(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing catalog CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("catalog CSV has no data rows")
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	products := make([]Product, 0, len(rows)-1)
	for _, row := range rows[1:] {
		p := Product{
			ID:       get(row, "id"),
			Name:     get(row, "name"),
			Color:    get(row, "color"),
			Category: get(row, "category"),
		}
		p.Price, _ = strconv.ParseFloat(get(row, "price"), 64)
		p.FinalPrice, _ = strconv.ParseFloat(get(row, "final_price"), 64)
		p.Stock, _ = strconv.Atoi(get(row, "stock"))
		products = append(products, p)
	}
	return products, nil
}
