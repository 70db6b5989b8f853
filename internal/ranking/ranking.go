// Package ranking implements the five-factor relevance scorer combining
// term frequency, positional proximity to the top of the document, title
// presence, citation-derived metadata weight, and a publication-date boost.
package ranking

import (
	"math"

	"github.com/paperindex/docsearch/pkg/config"
)

// Input holds everything the scorer needs for one (document, matched-word)
// pair. Positions holds the matched word's positions in this document,
// used to compute the average positional contribution.
type Input struct {
	WeightedFrequency int
	TitleFrequency    int
	Positions         []int
	DocLength         int
	CitedByCount      int
	MetadataAvailable bool
	PublicationYear   int
}

// Scorer computes ranking scores from configurable factor weights.
type Scorer struct {
	weightFrequency float64
	weightPosition  float64
	weightTitle     float64
	weightMetadata  float64
}

// New returns a Scorer using cfg's weights.
func New(cfg config.RankingConfig) *Scorer {
	return &Scorer{
		weightFrequency: cfg.FrequencyWeight,
		weightPosition:  cfg.PositionWeight,
		weightTitle:     cfg.TitleWeight,
		weightMetadata:  cfg.MetadataWeight,
	}
}

// Score computes the final relevance score for in.
func (s *Scorer) Score(in Input) float64 {
	freq := frequencyScore(in.WeightedFrequency)
	pos := positionScore(in.Positions, in.DocLength)
	title := titleBoost(in.TitleFrequency)
	meta := metadataScore(in.MetadataAvailable, in.CitedByCount)
	date := dateBoost(in.PublicationYear)

	base := freq*s.weightFrequency + pos*s.weightPosition + title*s.weightTitle + meta*s.weightMetadata
	return base * date
}

func frequencyScore(weightedFrequency int) float64 {
	return math.Log(1 + float64(weightedFrequency))
}

func positionScore(positions []int, docLength int) float64 {
	if len(positions) == 0 {
		return 0
	}
	var total float64
	for _, p := range positions {
		total += positionContribution(p, docLength)
	}
	return total / float64(len(positions))
}

func positionContribution(p, docLength int) float64 {
	if docLength > 0 {
		r := float64(p) / float64(docLength)
		switch {
		case r < 0.1:
			return 1 * (1 - 10*r)
		case r < 0.5:
			return 0.2 * (1 - 2.5*(r-0.1))
		default:
			return 0.1 * (1.1 - r)
		}
	}
	switch {
	case p < 10:
		return float64(10-p) * 0.1
	case p < 50:
		return float64(50-p) * 0.01
	default:
		return 0
	}
}

func titleBoost(titleFrequency int) float64 {
	if titleFrequency > 0 {
		return 2.0
	}
	return 1.0
}

func metadataScore(available bool, citedByCount int) float64 {
	if !available {
		return 0
	}
	return 0.3 * math.Log(1+float64(citedByCount))
}

func dateBoost(year int) float64 {
	if year <= 0 {
		return 1.0
	}
	boost := 1.0 + float64(year-2000)*0.01
	if boost < 0.5 {
		return 0.5
	}
	if boost > 2.0 {
		return 2.0
	}
	return boost
}
