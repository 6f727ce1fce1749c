// Package models derives classification metadata from model names and
// filters model lists by it.
package models

import (
	"regexp"
	"strconv"
	"strings"
)

// Size buckets, in ascending order.
const (
	Bucket1to2B   = "1-2B"
	Bucket3to7B   = "3-7B"
	Bucket8to15B  = "8-15B"
	Bucket16to34B = "16-34B"
	Bucket35to70B = "35-70B"
	Bucket70BPlus = "70B+"
)

// SizeBuckets lists all buckets in ascending order.
var SizeBuckets = []string{Bucket1to2B, Bucket3to7B, Bucket8to15B, Bucket16to34B, Bucket35to70B, Bucket70BPlus}

// Type tags.
const (
	TagInstruct  = "instruct"
	TagChat      = "chat"
	TagBase      = "base"
	TagSFT       = "sft"
	TagDPO       = "dpo"
	TagReasoning = "reasoning"
	TagCode      = "code"
	TagMath      = "math"
)

// Families recognized by Normalize.
var Families = []string{"llama", "mistral", "mixtral", "qwen", "gemma", "phi", "yi", "deepseek", "qwq", "granite"}

// RawModel is a model descriptor as reported by a provider.
type RawModel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	RepoID   string `json:"repo_id,omitempty"`
}

// Model is a RawModel with derived classification fields.
type Model struct {
	RawModel
	SizeB      float64  `json:"size_b,omitempty"`
	SizeBucket string   `json:"size_bucket,omitempty"`
	TypeTags   []string `json:"type_tags"`
	Family     string   `json:"family,omitempty"`
	MoE        string   `json:"moe,omitempty"`
}

var (
	sizePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([bm])\b`)
	moePattern  = regexp.MustCompile(`(?i)(\d+)\s*(?:x|×)\s*(\d+(?:\.\d+)?)\s*b`)

	tagRules = []struct {
		tag     string
		pattern *regexp.Regexp
	}{
		{TagInstruct, regexp.MustCompile(`(?i)instruct|\bit\b`)},
		{TagChat, regexp.MustCompile(`(?i)\bchat\b`)},
		{TagBase, regexp.MustCompile(`(?i)\bbase\b`)},
		{TagSFT, regexp.MustCompile(`(?i)\bsft\b`)},
		{TagDPO, regexp.MustCompile(`(?i)\bdpo\b`)},
		{TagReasoning, regexp.MustCompile(`(?i)reason|\br1\b|\bqwq\b|think`)},
		{TagCode, regexp.MustCompile(`(?i)code`)},
		{TagMath, regexp.MustCompile(`(?i)math`)},
	}

	familyPatterns = func() []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(Families))
		for i, f := range Families {
			if len(f) <= 3 {
				// Short names like "yi" and "phi" must not match inside other words.
				out[i] = regexp.MustCompile(`(?i)(?:^|[^a-z])` + f + `(?:[^a-z]|$)`)
				continue
			}
			out[i] = regexp.MustCompile(`(?i)` + f)
		}
		return out
	}()
)

// Normalize derives size, bucket, type tags, family and MoE layout from the
// model's name and id.
func Normalize(raw RawModel) Model {
	text := strings.TrimSpace(raw.Name + " " + raw.ID + " " + raw.RepoID)
	m := Model{
		RawModel: raw,
		TypeTags: TypeTags(text),
		Family:   Family(text),
		MoE:      MoE(text),
	}
	if size, ok := ParseSizeB(text); ok {
		m.SizeB = size
		m.SizeBucket = SizeBucket(size)
	}
	return m
}

// NormalizeAll normalizes a list of models, preserving order.
func NormalizeAll(raws []RawModel) []Model {
	out := make([]Model, len(raws))
	for i, r := range raws {
		out[i] = Normalize(r)
	}
	return out
}

// ParseSizeB returns the parameter count in billions from patterns like
// "7b", "1.5B" or "350m". The first "b" token wins over any "m" token, so
// "1M context 8B" is 8.
func ParseSizeB(text string) (float64, bool) {
	var match []string
	for _, m := range sizePattern.FindAllStringSubmatch(text, -1) {
		if strings.EqualFold(m[2], "b") {
			match = m
			break
		}
		if match == nil {
			match = m
		}
	}
	if match == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(match[2], "m") {
		n /= 1000
	}
	return n, true
}

// SizeBucket maps a size in billions to its bucket. Non-positive sizes have no bucket.
func SizeBucket(sizeB float64) string {
	switch {
	case sizeB <= 0:
		return ""
	case sizeB <= 2:
		return Bucket1to2B
	case sizeB <= 7:
		return Bucket3to7B
	case sizeB <= 15:
		return Bucket8to15B
	case sizeB <= 34:
		return Bucket16to34B
	case sizeB <= 70:
		return Bucket35to70B
	default:
		return Bucket70BPlus
	}
}

// TypeTags returns the type tags matched in text, in tag declaration order.
func TypeTags(text string) []string {
	tags := []string{}
	for _, rule := range tagRules {
		if rule.pattern.MatchString(text) {
			tags = append(tags, rule.tag)
		}
	}
	return tags
}

// Family returns the family whose name occurs earliest in text, or "".
func Family(text string) string {
	best, bestPos := "", -1
	for i, p := range familyPatterns {
		loc := p.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestPos == -1 || loc[0] < bestPos {
			best, bestPos = Families[i], loc[0]
		}
	}
	return best
}

// MoE returns the mixture-of-experts layout, e.g. "8x7B", or "".
func MoE(text string) string {
	match := moePattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1] + "x" + match[2] + "B"
}
