// Package notebook reads and writes Jupyter notebooks (nbformat 4) as an
// ordered list of typed cells. Fields the tool does not rewrite are carried
// through untouched.
package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/nbpublish/internal/apperr"
)

// CellType is the nbformat cell_type value.
type CellType string

// Cell types defined by nbformat 4.
const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
	CellRaw      CellType = "raw"
)

// Cell is one notebook cell. Source is the joined text of the cell.
type Cell struct {
	Type   CellType
	Source string

	extra map[string]json.RawMessage
}

// Notebook is a parsed notebook document.
type Notebook struct {
	Cells []*Cell

	extra map[string]json.RawMessage
}

// Parse decodes a notebook document. Anything that is not a JSON object with
// a cells array of typed cells is rejected with apperr.ErrInvalidNotebook.
func Parse(data []byte) (*Notebook, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidNotebook, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: document is not an object", apperr.ErrInvalidNotebook)
	}

	if raw, ok := top["nbformat"]; ok {
		var major int
		if err := json.Unmarshal(raw, &major); err != nil {
			return nil, fmt.Errorf("%w: nbformat: %v", apperr.ErrInvalidNotebook, err)
		}
		if major < 4 {
			return nil, fmt.Errorf("%w: unsupported nbformat %d", apperr.ErrInvalidNotebook, major)
		}
	}

	rawCells, ok := top["cells"]
	if !ok {
		return nil, fmt.Errorf("%w: missing cells", apperr.ErrInvalidNotebook)
	}
	var cellObjs []map[string]json.RawMessage
	if err := json.Unmarshal(rawCells, &cellObjs); err != nil {
		return nil, fmt.Errorf("%w: cells: %v", apperr.ErrInvalidNotebook, err)
	}
	delete(top, "cells")

	nb := &Notebook{Cells: make([]*Cell, 0, len(cellObjs)), extra: top}
	for i, obj := range cellObjs {
		c, err := parseCell(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", apperr.ErrInvalidNotebook, i, err)
		}
		nb.Cells = append(nb.Cells, c)
	}
	return nb, nil
}

func parseCell(obj map[string]json.RawMessage) (*Cell, error) {
	if obj == nil {
		return nil, fmt.Errorf("cell is not an object")
	}
	var typ string
	if err := json.Unmarshal(obj["cell_type"], &typ); err != nil || typ == "" {
		return nil, fmt.Errorf("missing cell_type")
	}
	rawSrc, ok := obj["source"]
	if !ok {
		return nil, fmt.Errorf("missing source")
	}
	src, err := decodeSource(rawSrc)
	if err != nil {
		return nil, err
	}
	delete(obj, "cell_type")
	delete(obj, "source")
	return &Cell{Type: CellType(typ), Source: src, extra: obj}, nil
}

// decodeSource accepts both the string and the list-of-lines form.
func decodeSource(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", fmt.Errorf("source must be a string or a list of strings")
	}
	return strings.Join(lines, ""), nil
}

// Marshal encodes the notebook the way nbformat writes it: one-space indent,
// sorted keys, no HTML escaping, sources split into lines, trailing newline.
func (nb *Notebook) Marshal() ([]byte, error) {
	doc := make(map[string]any, len(nb.extra)+1)
	for k, v := range nb.extra {
		doc[k] = v
	}
	cells := make([]map[string]any, 0, len(nb.Cells))
	for _, c := range nb.Cells {
		obj := make(map[string]any, len(c.extra)+2)
		for k, v := range c.extra {
			obj[k] = v
		}
		obj["cell_type"] = string(c.Type)
		obj["source"] = SplitLines(c.Source)
		cells = append(cells, obj)
	}
	doc["cells"] = cells

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("notebook: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// SplitLines splits s after every newline, keeping the newline characters.
// An empty string yields an empty (non-nil) slice.
func SplitLines(s string) []string {
	out := []string{}
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}

// Sources returns the cell sources in order.
func (nb *Notebook) Sources() []string {
	out := make([]string, len(nb.Cells))
	for i, c := range nb.Cells {
		out[i] = c.Source
	}
	return out
}

// New builds a minimal nbformat 4.5 notebook from cells. Used by tests and
// previews of bare cell lists.
func New(cells ...*Cell) *Notebook {
	return &Notebook{
		Cells: cells,
		extra: map[string]json.RawMessage{
			"metadata":       json.RawMessage(`{}`),
			"nbformat":       json.RawMessage(`4`),
			"nbformat_minor": json.RawMessage(`5`),
		},
	}
}

// NewCell returns a cell with the metadata nbformat requires for its type.
func NewCell(typ CellType, source string) *Cell {
	extra := map[string]json.RawMessage{"metadata": json.RawMessage(`{}`)}
	if typ == CellCode {
		extra["execution_count"] = json.RawMessage(`null`)
		extra["outputs"] = json.RawMessage(`[]`)
	}
	return &Cell{Type: typ, Source: source, extra: extra}
}
