package ranking

import (
	"math"
	"testing"

	"github.com/paperindex/docsearch/pkg/config"
)

func defaultWeights() config.RankingConfig {
	return config.RankingConfig{
		FrequencyWeight: 0.4,
		PositionWeight:  0.2,
		TitleWeight:     0.3,
		MetadataWeight:  0.1,
	}
}

func TestFrequencyScoreIsLogSaturating(t *testing.T) {
	if got := frequencyScore(0); got != 0 {
		t.Errorf("frequencyScore(0) = %v, want 0", got)
	}
	got := frequencyScore(9)
	want := math.Log(10)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("frequencyScore(9) = %v, want %v", got, want)
	}
}

func TestPositionScoreEarlyBeatsLate(t *testing.T) {
	early := positionScore([]int{5}, 100)
	late := positionScore([]int{90}, 100)
	if early <= late {
		t.Errorf("expected early position score > late, got early=%v late=%v", early, late)
	}
}

func TestPositionScoreFallsBackWithoutDocLength(t *testing.T) {
	got := positionContribution(5, 0)
	want := float64(10-5) * 0.1
	if got != want {
		t.Errorf("positionContribution(5,0) = %v, want %v", got, want)
	}
	if positionContribution(60, 0) != 0 {
		t.Errorf("positionContribution(60,0) should be 0 past the absolute cutoff")
	}
}

func TestTitleBoost(t *testing.T) {
	if titleBoost(0) != 1.0 {
		t.Errorf("titleBoost(0) = %v, want 1.0", titleBoost(0))
	}
	if titleBoost(1) != 2.0 {
		t.Errorf("titleBoost(1) = %v, want 2.0", titleBoost(1))
	}
}

func TestMetadataScoreZeroWithoutMetadata(t *testing.T) {
	if metadataScore(false, 100) != 0 {
		t.Errorf("expected 0 metadata score without metadata")
	}
	if metadataScore(true, 0) != 0 {
		t.Errorf("expected 0 metadata score for zero citations")
	}
	if metadataScore(true, 10) <= 0 {
		t.Errorf("expected positive metadata score for cited document")
	}
}

func TestDateBoostClampsAndDefaultsToOne(t *testing.T) {
	if dateBoost(0) != 1.0 {
		t.Errorf("dateBoost(0) = %v, want 1.0", dateBoost(0))
	}
	if dateBoost(1900) != 0.5 {
		t.Errorf("dateBoost(1900) = %v, want clamped to 0.5", dateBoost(1900))
	}
	if dateBoost(2200) != 2.0 {
		t.Errorf("dateBoost(2200) = %v, want clamped to 2.0", dateBoost(2200))
	}
}

func TestScoreCombinesFactorsWithDateBoostMultiplied(t *testing.T) {
	scorer := New(defaultWeights())
	in := Input{
		WeightedFrequency: 4,
		TitleFrequency:    1,
		Positions:         []int{0},
		DocLength:         10,
		CitedByCount:      5,
		MetadataAvailable: true,
		PublicationYear:   2010,
	}
	got := scorer.Score(in)

	freq := frequencyScore(in.WeightedFrequency)
	pos := positionScore(in.Positions, in.DocLength)
	title := titleBoost(in.TitleFrequency)
	meta := metadataScore(true, 5)
	date := dateBoost(2010)
	want := (freq*0.4 + pos*0.2 + title*0.3 + meta*0.1) * date
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Score = %v, want %v", got, want)
	}
}
