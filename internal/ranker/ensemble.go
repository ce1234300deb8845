package ranker

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-letor/internal/letor"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

type xmlSplit struct {
	Pos       string     `xml:"pos,attr"`
	Feature   string     `xml:"feature"`
	Threshold string     `xml:"threshold"`
	Output    string     `xml:"output"`
	Children  []xmlSplit `xml:"split"`
}

type xmlTree struct {
	Weight string   `xml:"weight,attr"`
	Root   xmlSplit `xml:"split"`
}

type xmlEnsemble struct {
	Trees []xmlTree `xml:"tree"`
}

type xmlForest struct {
	Ensembles []xmlEnsemble `xml:"ensemble"`
}

// node is a regression tree node. Leaves have feature < 0.
type node struct {
	feature     int // 0-based
	threshold   float64
	output      float64
	left, right int
}

type tree struct {
	weight float64
	nodes  []node
}

func (t *tree) eval(v letor.Vector) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.feature < 0 {
			return n.output
		}
		var x float64
		if n.feature < len(v) {
			x = v[n.feature]
		}
		if x <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// Ensemble is a weighted sum of regression trees (MART, LambdaMART).
// A forest averages several ensembles (Random Forests).
type Ensemble struct {
	bags [][]tree
	dim  int
}

func parseEnsembles(body []byte, forest bool) (*Ensemble, error) {
	var f xmlForest
	wrapped := append(append([]byte("<forest>"), bytes.TrimSpace(body)...), "</forest>"...)
	if err := xml.Unmarshal(wrapped, &f); err != nil {
		return nil, apperrors.ParseError("invalid tree ensemble", err)
	}
	if len(f.Ensembles) == 0 {
		return nil, apperrors.ParseError("no <ensemble> in model", nil)
	}
	if !forest && len(f.Ensembles) > 1 {
		return nil, apperrors.ParseError("more than one <ensemble> in a boosted model", nil)
	}

	m := &Ensemble{}
	for _, e := range f.Ensembles {
		var bag []tree
		for i, xt := range e.Trees {
			t, err := m.buildTree(xt)
			if err != nil {
				return nil, apperrors.ParseError("tree "+strconv.Itoa(i+1), err)
			}
			bag = append(bag, t)
		}
		m.bags = append(m.bags, bag)
	}
	return m, nil
}

func (m *Ensemble) buildTree(xt xmlTree) (tree, error) {
	t := tree{weight: 1}
	if xt.Weight != "" {
		w, err := parseNum(xt.Weight)
		if err != nil {
			return t, err
		}
		t.weight = w
	}
	_, err := m.addNode(&t, xt.Root)
	return t, err
}

// addNode appends s and its subtree to t and returns its index.
func (m *Ensemble) addNode(t *tree, s xmlSplit) (int, error) {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{feature: -1})

	if strings.TrimSpace(s.Output) != "" {
		out, err := parseNum(s.Output)
		if err != nil {
			return 0, err
		}
		t.nodes[idx].output = out
		return idx, nil
	}

	fid, err := strconv.Atoi(strings.TrimSpace(s.Feature))
	if err != nil || fid < 1 {
		return 0, apperrors.ParseError("invalid split feature '"+s.Feature+"'", err)
	}
	threshold, err := parseNum(s.Threshold)
	if err != nil {
		return 0, err
	}

	var left, right *xmlSplit
	for i := range s.Children {
		switch s.Children[i].Pos {
		case "left":
			left = &s.Children[i]
		case "right":
			right = &s.Children[i]
		}
	}
	if left == nil || right == nil {
		return 0, apperrors.ParseError("split on feature "+strconv.Itoa(fid)+" lacks a left or right branch", nil)
	}

	l, err := m.addNode(t, *left)
	if err != nil {
		return 0, err
	}
	r, err := m.addNode(t, *right)
	if err != nil {
		return 0, err
	}
	t.nodes[idx] = node{feature: fid - 1, threshold: threshold, left: l, right: r}
	m.dim = max(m.dim, fid)
	return idx, nil
}

func parseNum(s string) (float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, apperrors.ParseError("invalid number '"+s+"'", err)
	}
	return x, nil
}

// Score sums the weighted tree outputs, averaging over bags.
func (m *Ensemble) Score(v letor.Vector) (float64, error) {
	var total float64
	for _, bag := range m.bags {
		var s float64
		for i := range bag {
			s += bag[i].weight * bag[i].eval(v)
		}
		total += s
	}
	return total / float64(len(m.bags)), nil
}

// Dim returns the highest feature id used by a split.
func (m *Ensemble) Dim() int { return m.dim }
