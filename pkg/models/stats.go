package models

// ImageStatistics represents alt text coverage of the media library
type ImageStatistics struct {
	TotalImages       int64 `json:"total_images"`
	MissingAltText    int64 `json:"missing_alt_text"`
	WithAltText       int64 `json:"with_alt_text"`
	MissingPercentage int   `json:"missing_percentage"`
}

// StatsFilter narrows the images counted by a statistics query
type StatsFilter struct {
	MissingAltOnly bool
	OnlyAttached   bool
}

// NewImageStatistics derives display figures from raw counts.
// missing is clamped to [0, total].
func NewImageStatistics(total, missing int64) ImageStatistics {
	if total < 0 {
		total = 0
	}
	if missing < 0 {
		missing = 0
	}
	if missing > total {
		missing = total
	}
	return ImageStatistics{
		TotalImages:       total,
		MissingAltText:    missing,
		WithAltText:       total - missing,
		MissingPercentage: RoundPercent(missing, total),
	}
}

// WithAltPercentage is the complement of MissingPercentage.
func (s ImageStatistics) WithAltPercentage() int {
	return 100 - s.MissingPercentage
}

// RoundPercent returns part/total*100 rounded half up, or 0 when total is 0.
func RoundPercent(part, total int64) int {
	if total <= 0 {
		return 0
	}
	return int((part*200 + total) / (2 * total))
}

// FloorPercent returns part/total*100 rounded down, or 0 when total is 0.
func FloorPercent(part, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(part * 100 / total)
}
