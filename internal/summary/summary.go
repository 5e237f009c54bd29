// Package summary turns flood metrics into the sentences shown next to each
// overlay.
package summary

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Brownie44l1/flood-api/internal/mask"
)

const (
	highAgreement = "This high level of agreement suggests confident predictions across most of the image."

	moderateDisagreement = "This moderate disagreement suggests some areas of uncertainty that may benefit from " +
		"expert review, particularly in regions with ambiguous flood characteristics."

	significantDisagreement = "This significant disagreement indicates substantial uncertainty in the predictions. " +
		"Manual inspection is recommended, especially for the highlighted disagreement regions."
)

// Policy holds the disagreement percentages that switch the tone of the
// comparison summary. Below Low reads as confident, from Low up to (not
// including) High as moderate, High and above as significant.
type Policy struct {
	Low  float64
	High float64
}

func DefaultPolicy() Policy {
	return Policy{Low: 5, High: 15}
}

// Tone classifies a disagreement percentage.
type Tone int

const (
	ToneConfident Tone = iota
	ToneModerate
	ToneSignificant
)

func (t Tone) String() string {
	switch t {
	case ToneConfident:
		return "confident"
	case ToneModerate:
		return "moderate"
	case ToneSignificant:
		return "significant"
	}
	return "unknown"
}

func (p Policy) Tone(disagreementPercent float64) Tone {
	switch {
	case disagreementPercent < p.Low:
		return ToneConfident
	case disagreementPercent < p.High:
		return ToneModerate
	default:
		return ToneSignificant
	}
}

func (p Policy) Validate() error {
	if p.Low < 0 || p.High > 100 || p.Low > p.High {
		return fmt.Errorf("invalid disagreement thresholds: low=%v high=%v", p.Low, p.High)
	}
	return nil
}

// Summaries is the text attached to each section of the analysis.
type Summaries struct {
	First        string
	Second       string
	Disagreement string
}

type Generator struct {
	FirstLabel  string
	SecondLabel string
	Policy      Policy
}

func NewGenerator(first, second string, policy Policy) *Generator {
	return &Generator{
		FirstLabel:  first,
		SecondLabel: second,
		Policy:      policy,
	}
}

func (g *Generator) Generate(first, second mask.Metrics, d mask.Disagreement) Summaries {
	firstText := fmt.Sprintf(
		"%s detected %s%% of the image area as flooded, corresponding to %s pixels out of %s total pixels.",
		g.FirstLabel, percent(first.FloodPercent), humanize.Comma(int64(first.FloodPixels)),
		humanize.Comma(int64(first.TotalPixels)),
	)

	secondText := fmt.Sprintf(
		"%s identified %s%% of the area as flooded, corresponding to %s pixels. ",
		g.SecondLabel, percent(second.FloodPercent), humanize.Comma(int64(second.FloodPixels)),
	) + g.Comparison(first, second)

	disagreementText := fmt.Sprintf(
		"The models show %s%% agreement in their predictions. They disagree on %s%% of the image area (%s pixels). ",
		percent(d.AgreementPercent), percent(d.DisagreementPercent), humanize.Comma(int64(d.DisagreementPixels)),
	)
	switch g.Policy.Tone(d.DisagreementPercent) {
	case ToneConfident:
		disagreementText += highAgreement
	case ToneModerate:
		disagreementText += moderateDisagreement
	default:
		disagreementText += significantDisagreement
	}

	return Summaries{
		First:        firstText,
		Second:       secondText,
		Disagreement: disagreementText,
	}
}

// Comparison states which model flagged more area.
func (g *Generator) Comparison(first, second mask.Metrics) string {
	diff := math.Abs(first.FloodPercent - second.FloodPercent)

	switch {
	case first.FloodPercent > second.FloodPercent:
		return fmt.Sprintf("%s predicted %.2f%% more flooded area than %s, showing a more sensitive detection approach.",
			g.FirstLabel, diff, g.SecondLabel)
	case first.FloodPercent < second.FloodPercent:
		return fmt.Sprintf("%s predicted %.2f%% more flooded area than %s, showing a more sensitive detection approach.",
			g.SecondLabel, diff, g.FirstLabel)
	default:
		return "Both models predicted the same flood area percentage."
	}
}

// percent prints the shortest decimal form, always with a fractional part.
func percent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
