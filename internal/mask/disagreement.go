package mask

import "fmt"

// Disagreement holds the XOR of two masks and its coverage.
type Disagreement struct {
	Mask                *Binary `json:"-"`
	DisagreementPixels  int     `json:"disagreement_pixels"`
	DisagreementPercent float64 `json:"disagreement_percent"`
	AgreementPercent    float64 `json:"agreement_percent"`
}

// Compare computes where a and b differ. Both masks must be Size x Size.
func Compare(a, b *Binary) (Disagreement, error) {
	if err := a.checkShape(); err != nil {
		return Disagreement{}, fmt.Errorf("first mask: %w", err)
	}
	if err := b.checkShape(); err != nil {
		return Disagreement{}, fmt.Errorf("second mask: %w", err)
	}

	xor := New(Size, Size)
	count := 0
	for i := range xor.Pix {
		if (a.Pix[i] != 0) != (b.Pix[i] != 0) {
			xor.Pix[i] = 1
			count++
		}
	}

	raw := float64(count) / TotalPixels * 100
	return Disagreement{
		Mask:                xor,
		DisagreementPixels:  count,
		DisagreementPercent: roundPercent(raw),
		AgreementPercent:    roundPercent(100 - raw),
	}, nil
}
