package mask

// Metrics describes flood coverage of a single mask.
type Metrics struct {
	FloodPixels  int     `json:"flood_pixels"`
	TotalPixels  int     `json:"total_pixels"`
	FloodPercent float64 `json:"flood_percent"`
}

// Calculate counts flood pixels of a Size x Size mask.
func Calculate(m *Binary) (Metrics, error) {
	if err := m.checkShape(); err != nil {
		return Metrics{}, err
	}

	flood := m.Count()
	return Metrics{
		FloodPixels:  flood,
		TotalPixels:  TotalPixels,
		FloodPercent: roundPercent(float64(flood) / TotalPixels * 100),
	}, nil
}
