// Package clips computes media clip references for hits on timed segments.
// The reference names a window inside the source media; cutting the actual
// file is the media layer's job.
package clips

import (
	"github.com/contracheck/contracheck/pkg/models"
)

// Default context padding around a segment, matching the detection window
// defaults.
const (
	DefaultBeforeMS = 5000
	DefaultAfterMS  = 10000
)

// ForSegment builds a clip reference around a timed segment, padded by
// beforeMS/afterMS and clamped at zero. durationMS > 0 additionally clamps
// the end. Returns nil for untimed segments or sources without media.
func ForSegment(seg *models.Segment, mediaPath string, beforeMS, afterMS, durationMS int64) *models.ClipRef {
	if seg == nil || !seg.Timed() || mediaPath == "" {
		return nil
	}
	if beforeMS < 0 {
		beforeMS = 0
	}
	if afterMS < 0 {
		afterMS = 0
	}

	start := *seg.TsStartMS - beforeMS
	if start < 0 {
		start = 0
	}
	end := *seg.TsEndMS + afterMS
	if durationMS > 0 && end > durationMS {
		end = durationMS
	}
	if end < start {
		end = start
	}

	return &models.ClipRef{
		MediaPath: mediaPath,
		StartMS:   start,
		EndMS:     end,
	}
}
