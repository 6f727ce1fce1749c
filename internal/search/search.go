// Package search implements fuzzy search over workflows and their nodes.
package search

import (
	"sort"
	"strings"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// Mode selects which fields of a workflow are searched.
type Mode string

const (
	// ModeAll searches name, description and, optionally, node titles and types.
	ModeAll Mode = "all"
	// ModeNodes searches only node titles and types.
	ModeNodes Mode = "nodes"
)

// Field weights applied to a field's similarity.
const (
	weightName        = 1.0
	weightDescription = 0.6
	weightNode        = 0.4
)

// Options control a workflow search.
type Options struct {
	// Threshold is the minimum similarity for a field to match. Zero means DefaultThreshold.
	Threshold float64
	// IncludeNodes adds node titles and types to the searched fields in ModeAll.
	IncludeNodes bool
	Mode         Mode
	// Limit caps the number of results. Zero means unlimited.
	Limit int
}

func (o Options) threshold() float64 {
	if o.Threshold <= 0 || o.Threshold > 1 {
		return DefaultThreshold
	}
	return o.Threshold
}

// Result is a matched workflow with its score and the matched substrings.
type Result struct {
	Workflow *types.Workflow `json:"workflow"`
	Score    float64         `json:"score"`
	Matches  []string        `json:"matches"`

	// rank is the field-weighted similarity; it orders results with equal scores.
	rank float64
}

// Workflows searches workflows for query. An empty or whitespace-only query
// returns every workflow unranked with a score of 1. A workflow with an exact
// substring hit in any searched field scores 1; otherwise its score is the
// best field similarity scaled by the field weight. Results are sorted by
// score, then by weighted similarity, highest first; ties keep input order.
func Workflows(workflows []*types.Workflow, query string, opts Options) []Result {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		results := make([]Result, 0, len(workflows))
		for _, wf := range workflows {
			results = append(results, Result{Workflow: wf, Score: 1, Matches: []string{}})
		}
		return limit(results, opts.Limit)
	}

	threshold := opts.threshold()
	results := make([]Result, 0)
	for _, wf := range workflows {
		if wf == nil {
			continue
		}
		if r, ok := scoreWorkflow(wf, q, opts, threshold); ok {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].rank > results[j].rank
	})
	return limit(results, opts.Limit)
}

func scoreWorkflow(wf *types.Workflow, q string, opts Options, threshold float64) (Result, bool) {
	var (
		best    float64
		exact   bool
		matches []string
		seen    = make(map[string]bool)
	)
	record := func(m fieldMatch, weight float64) {
		if s := m.score * weight; s > best {
			best = s
		}
		if m.score >= 1 {
			exact = true
		}
		if !seen[m.text] {
			seen[m.text] = true
			matches = append(matches, m.text)
		}
	}

	if opts.Mode != ModeNodes {
		if m, ok := matchField(q, wf.Name, threshold); ok {
			record(m, weightName)
		}
		if m, ok := matchField(q, wf.Description, threshold); ok {
			record(m, weightDescription)
		}
	}

	if opts.Mode == ModeNodes || opts.IncludeNodes {
		for _, nm := range matchNodes(wf, q, threshold, opts.Mode == ModeNodes) {
			record(fieldMatch{score: nm.Score, text: nm.Matched}, weightNode)
		}
	}

	if len(matches) == 0 {
		return Result{}, false
	}
	// Node-only results are ranked on node similarity alone.
	if opts.Mode == ModeNodes {
		best /= weightNode
	}
	score := best
	if exact {
		score = 1
	}
	return Result{Workflow: wf, Score: score, Matches: matches, rank: best}, true
}

// NodeMatch is a node whose title or type matched a query.
type NodeMatch struct {
	NodeID string `json:"node_id"`
	Title  string `json:"title,omitempty"`
	Type   string `json:"type"`
	Field  string `json:"field"`

	// Matched is the matched text. For type matches in node mode this is
	// the dotted segment of the type that matched.
	Matched string  `json:"matched"`
	Score   float64 `json:"score"`
}

// WorkflowNodes groups the matching nodes of one workflow.
type WorkflowNodes struct {
	WorkflowID   string      `json:"workflow_id"`
	WorkflowName string      `json:"workflow_name"`
	Nodes        []NodeMatch `json:"nodes"`
}

// MatchingNodes returns, per workflow, the nodes whose title or type
// matches query. Workflows without matching nodes are omitted.
func MatchingNodes(workflows []*types.Workflow, query string, threshold float64) []WorkflowNodes {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []WorkflowNodes{}
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	out := make([]WorkflowNodes, 0)
	for _, wf := range workflows {
		if wf == nil {
			continue
		}
		nodes := matchNodes(wf, q, threshold, true)
		if len(nodes) == 0 {
			continue
		}
		out = append(out, WorkflowNodes{WorkflowID: wf.ID, WorkflowName: wf.Name, Nodes: nodes})
	}
	return out
}

func matchNodes(wf *types.Workflow, q string, threshold float64, segments bool) []NodeMatch {
	var out []NodeMatch
	for _, node := range wf.Graph.Nodes {
		title := node.Title()
		typeName := node.ResolvedType()

		var (
			best  fieldMatch
			field string
		)
		if m, ok := matchField(q, title, threshold); ok {
			best, field = m, "title"
		}

		var tm fieldMatch
		var ok bool
		if segments {
			tm, ok = matchSegment(q, typeName, threshold)
		} else {
			tm, ok = matchField(q, typeName, threshold)
		}
		if ok && tm.score > best.score {
			best, field = tm, "type"
		}

		if field == "" {
			continue
		}
		out = append(out, NodeMatch{
			NodeID:  node.ID,
			Title:   title,
			Type:    typeName,
			Field:   field,
			Matched: best.text,
			Score:   best.score,
		})
	}
	return out
}

func limit(results []Result, n int) []Result {
	if n > 0 && len(results) > n {
		return results[:n]
	}
	return results
}
