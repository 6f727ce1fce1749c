package search

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

func testWorkflows() []*types.Workflow {
	return []*types.Workflow{
		{
			ID:          "wf1",
			Name:        "Image Captioner",
			Description: "Describe photos with a vision model",
			Graph: types.Graph{Nodes: []types.Node{
				{ID: "n1", Type: "nodetool.image.Resize"},
				{ID: "n2", Type: "huggingface.image_to_text.ImageToText", Data: types.NodeData{"title": "Caption"}},
			}},
		},
		{
			ID:          "wf2",
			Name:        "Text Summarizer",
			Description: "Summarize long documents",
			Graph: types.Graph{Nodes: []types.Node{
				{ID: "s1", Type: "nodetool.text.Summarize"},
			}},
		},
		{
			ID:          "wf3",
			Name:        "Audio transcribe",
			Description: "Speech to text with whisper",
			Graph: types.Graph{Nodes: []types.Node{
				{ID: "a1", Type: "openai.audio.Transcribe"},
			}},
		},
	}
}

func resultIDs(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Workflow.ID
	}
	return out
}

func TestWorkflows_EmptyQuery(t *testing.T) {
	for _, q := range []string{"", "   "} {
		results := Workflows(testWorkflows(), q, Options{})
		if len(results) != 3 {
			t.Fatalf("expected all 3 workflows for query %q, got %d", q, len(results))
		}
		for _, r := range results {
			if r.Score != 1 {
				t.Errorf("expected score 1 for unranked result, got %v", r.Score)
			}
		}
	}
}

func TestWorkflows_ExactName(t *testing.T) {
	results := Workflows(testWorkflows(), "Summarizer", Options{})

	if diff := cmp.Diff([]string{"wf2"}, resultIDs(results)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if results[0].Score != 1 {
		t.Errorf("expected score 1, got %v", results[0].Score)
	}
	if diff := cmp.Diff([]string{"Summarizer", "Summarize"}, results[0].Matches); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkflows_Typo(t *testing.T) {
	results := Workflows(testWorkflows(), "sumarize", Options{})

	if diff := cmp.Diff([]string{"wf2"}, resultIDs(results)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if s := results[0].Score; s >= 1 || s < DefaultThreshold {
		t.Errorf("expected fuzzy score in [%v, 1), got %v", DefaultThreshold, s)
	}
}

func TestWorkflows_NoMatch(t *testing.T) {
	results := Workflows(testWorkflows(), "zzzzqqq", Options{IncludeNodes: true})
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", resultIDs(results))
	}
}

func TestWorkflows_RankedByFieldWeight(t *testing.T) {
	// wf2 matches on its name, wf3 only on its description.
	results := Workflows(testWorkflows(), "text", Options{})

	if diff := cmp.Diff([]string{"wf2", "wf3"}, resultIDs(results)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	// Both are exact hits; the name hit ranks first on field weight.
	for _, r := range results {
		if r.Score != 1 {
			t.Errorf("%s: expected score 1 for an exact hit, got %v", r.Workflow.ID, r.Score)
		}
	}
}

func TestWorkflows_ExactDescriptionScoresOne(t *testing.T) {
	wfs := []*types.Workflow{
		{ID: "typo", Name: "Summarise"},
		{ID: "desc", Name: "Pipeline", Description: "summarize"},
	}

	results := Workflows(wfs, "summarize", Options{})
	if diff := cmp.Diff([]string{"desc", "typo"}, resultIDs(results)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if results[0].Score != 1 {
		t.Errorf("expected exact description hit to score 1, got %v", results[0].Score)
	}
	if s := results[1].Score; s >= 1 || s < DefaultThreshold {
		t.Errorf("expected fuzzy name score in [%v, 1), got %v", DefaultThreshold, s)
	}
}

func TestWorkflows_FuzzyScoreIsWeighted(t *testing.T) {
	wfs := []*types.Workflow{{ID: "wf", Name: "Pipeline", Description: "summarise"}}

	results := Workflows(wfs, "summarize", Options{})
	if len(results) != 1 {
		t.Fatalf("expected one result, got %v", resultIDs(results))
	}
	if s := results[0].Score; s > weightDescription {
		t.Errorf("expected description-weighted score <= %v, got %v", weightDescription, s)
	}
}

func TestWorkflows_IncludeNodes(t *testing.T) {
	wfs := testWorkflows()

	if results := Workflows(wfs, "ImageToText", Options{}); len(results) != 0 {
		t.Fatalf("expected no results without node search, got %v", resultIDs(results))
	}

	results := Workflows(wfs, "ImageToText", Options{IncludeNodes: true})
	if diff := cmp.Diff([]string{"wf1"}, resultIDs(results)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if results[0].Score != 1 {
		t.Errorf("expected exact node hit to score 1, got %v", results[0].Score)
	}
	if math.Abs(results[0].rank-weightNode) > 1e-9 {
		t.Errorf("expected node-weighted rank %v, got %v", weightNode, results[0].rank)
	}
	if diff := cmp.Diff([]string{"ImageToText"}, results[0].Matches); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkflows_NodeModeReportsSegment(t *testing.T) {
	results := Workflows(testWorkflows(), "sumarize", Options{Mode: ModeNodes})

	if diff := cmp.Diff([]string{"wf2"}, resultIDs(results)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Summarize"}, results[0].Matches); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
	if results[0].Score < DefaultThreshold {
		t.Errorf("expected unweighted node score, got %v", results[0].Score)
	}
}

func TestWorkflows_Limit(t *testing.T) {
	results := Workflows(testWorkflows(), "", Options{Limit: 2})
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestWorkflows_StableTies(t *testing.T) {
	wfs := []*types.Workflow{
		{ID: "b", Name: "Image B"},
		{ID: "a", Name: "Image A"},
		{ID: "c", Name: "Image C"},
	}
	results := Workflows(wfs, "image", Options{})
	if diff := cmp.Diff([]string{"b", "a", "c"}, resultIDs(results)); diff != "" {
		t.Errorf("tied results should keep input order (-want +got):\n%s", diff)
	}
}

func TestMatchingNodes(t *testing.T) {
	got := MatchingNodes(testWorkflows(), "image", 0)

	if len(got) != 1 || got[0].WorkflowID != "wf1" {
		t.Fatalf("expected only wf1, got %+v", got)
	}
	want := []NodeMatch{
		{NodeID: "n1", Type: "nodetool.image.Resize", Field: "type", Matched: "image", Score: 1},
		{NodeID: "n2", Title: "Caption", Type: "huggingface.image_to_text.ImageToText", Field: "type", Matched: "image_to_text", Score: 1},
	}
	if diff := cmp.Diff(want, got[0].Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchingNodes_TitleMatch(t *testing.T) {
	got := MatchingNodes(testWorkflows(), "caption", 0)

	if len(got) != 1 || len(got[0].Nodes) != 1 {
		t.Fatalf("expected a single matching node, got %+v", got)
	}
	if n := got[0].Nodes[0]; n.NodeID != "n2" || n.Field != "title" {
		t.Errorf("expected title match on n2, got %+v", n)
	}
}

func TestMatchingNodes_EmptyQuery(t *testing.T) {
	if got := MatchingNodes(testWorkflows(), " ", 0); len(got) != 0 {
		t.Errorf("expected no matches, got %+v", got)
	}
}
