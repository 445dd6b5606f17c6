// Package scoring combines metadata signals and LLM sub-scores into one
// comparable relevance score for papers and repositories.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/YoungLulu/auto-digest/pkg/source"
)

// Dimension names one axis of the comprehensive score.
type Dimension string

const (
	Popularity               Dimension = "popularity"
	TechnicalInnovation      Dimension = "technical_innovation"
	ApplicationValue         Dimension = "application_value"
	Readability              Dimension = "readability"
	ExperimentalThoroughness Dimension = "experimental_thoroughness"
	AuthorInfluence          Dimension = "author_influence"
)

// Dimensions lists every dimension in summation order.
var Dimensions = []Dimension{
	Popularity,
	TechnicalInnovation,
	ApplicationValue,
	Readability,
	ExperimentalThoroughness,
	AuthorInfluence,
}

// SubjectiveDimensions are the four dimensions supplied by the classifier.
var SubjectiveDimensions = []Dimension{
	TechnicalInnovation,
	ApplicationValue,
	Readability,
	ExperimentalThoroughness,
}

// Weights sum to 1.0.
var Weights = map[Dimension]float64{
	Popularity:               0.25,
	TechnicalInnovation:      0.20,
	ApplicationValue:         0.10,
	Readability:              0.15,
	ExperimentalThoroughness: 0.15,
	AuthorInfluence:          0.15,
}

var labels = map[Dimension]string{
	Popularity:               "Popularity",
	TechnicalInnovation:      "Technical Innovation",
	ApplicationValue:         "Application Value",
	Readability:              "Readability",
	ExperimentalThoroughness: "Experimental Thoroughness",
	AuthorInfluence:          "Author Influence",
}

// Label returns the display name of a dimension.
func (d Dimension) Label() string {
	if l, ok := labels[d]; ok {
		return l
	}
	return string(d)
}

const (
	neutral  = 5.0
	maxScore = 10.0
)

var topVenues = []string{
	"icml", "neurips", "iclr", "aaai", "ijcai", "acl", "emnlp", "naacl",
	"cvpr", "iccv", "eccv", "kdd", "www", "sigir", "wsdm", "icse", "fse",
}

var influentialOrgs = []string{
	"google", "microsoft", "meta", "openai", "anthropic", "deepmind",
	"stanford", "mit", "berkeley", "cmu", "harvard", "oxford", "cambridge",
	"nvidia", "huggingface", "salesforce", "adobe", "ibm", "amazon",
	"tsinghua", "peking", "tencent", "baidu", "alibaba",
}

// Bundle holds classifier sub-scores. Missing keys count as 5.0.
type Bundle map[Dimension]float64

// Result is the scored outcome for one item.
type Result struct {
	IndividualScores map[Dimension]float64 `json:"individual_scores"`
	FinalScore       float64               `json:"final_score"`
	ScoreBreakdown   map[Dimension]float64 `json:"score_breakdown"`
}

// Score computes the comprehensive score for item. It is pure and safe
// for concurrent use.
func Score(item source.Item, bundle Bundle) Result {
	individual := make(map[Dimension]float64, len(Dimensions))
	individual[Popularity] = PopularityScore(item)
	for _, d := range SubjectiveDimensions {
		individual[d] = subjective(bundle, d)
	}
	individual[AuthorInfluence] = AuthorInfluenceScore(item)

	var total float64
	breakdown := make(map[Dimension]float64, len(Dimensions))
	for _, d := range Dimensions {
		weighted := individual[d] * Weights[d]
		total += weighted
		breakdown[d] = round2(weighted)
	}

	return Result{
		IndividualScores: individual,
		FinalScore:       clamp(round2(total)),
		ScoreBreakdown:   breakdown,
	}
}

// PopularityScore maps star counts (repositories) or venue and category
// signals (papers) onto [3,10].
func PopularityScore(item source.Item) float64 {
	switch item.Kind {
	case source.KindRepository:
		return starTier(item.Stars)
	case source.KindPaper:
		score := neutral
		text := strings.ToLower(item.Title) + "\n" + strings.ToLower(item.Description)
		if containsAny(text, topVenues) {
			score += 2
		}
		for _, cat := range item.Categories {
			if strings.Contains(cat, "cs.AI") || strings.Contains(cat, "cs.LG") {
				score++
				break
			}
		}
		return math.Min(score, maxScore)
	default:
		return neutral
	}
}

func starTier(stars int) float64 {
	switch {
	case stars >= 10000:
		return 10
	case stars >= 5000:
		return 9
	case stars >= 1000:
		return 8
	case stars >= 500:
		return 7
	case stars >= 100:
		return 6
	case stars >= 50:
		return 5
	case stars >= 10:
		return 4
	default:
		return 3
	}
}

// AuthorInfluenceScore rewards influential organizations and, for papers,
// larger collaborations.
func AuthorInfluenceScore(item source.Item) float64 {
	score := neutral

	switch item.Kind {
	case source.KindPaper:
		if containsAny(strings.ToLower(strings.Join(item.Authors, " ")), influentialOrgs) {
			score += 2
		}
		switch n := len(item.Authors); {
		case n >= 5:
			score++
		case n >= 3:
			score += 0.5
		}
	case source.KindRepository:
		text := strings.ToLower(item.URL) + "\n" + strings.ToLower(item.Description)
		if containsAny(text, influentialOrgs) {
			score += 2
		}
		if item.Stars >= 1000 {
			score++
		}
	}

	return math.Min(score, maxScore)
}

// Explain renders a result as a short human-readable breakdown.
func Explain(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Final Score: %s/10**\n\n", formatScore(r.FinalScore))
	b.WriteString("**Score Breakdown:**\n")
	for _, d := range Dimensions {
		fmt.Fprintf(&b, "• %s: %s/10 (weight %d%%) = %s\n",
			d.Label(),
			formatScore(r.IndividualScores[d]),
			int(math.Round(Weights[d]*100)),
			formatScore(r.ScoreBreakdown[d]))
	}
	return b.String()
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func subjective(bundle Bundle, d Dimension) float64 {
	v, ok := bundle[d]
	if !ok || math.IsNaN(v) {
		return neutral
	}
	return clamp(v)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// round2 rounds half-up to two decimals. The 1e-6 nudge lets decimal ties
// stored just below the midpoint (8.025 is 8.02499...) round up.
func round2(x float64) float64 {
	return math.Round(x*100+1e-6) / 100
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(maxScore, v))
}
