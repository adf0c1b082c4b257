package reel

import (
	"fmt"
	"time"
)

// ArtifactName builds the deterministic output file name for a finished reel.
// ext is given without the leading dot.
func ArtifactName(mode Mode, q Quality, at time.Time, ext string) string {
	prefix := "quote-reel"
	if mode == ModeVideo {
		prefix = "quote-video"
	}
	return fmt.Sprintf("%s-%s-%d.%s", prefix, q, at.UnixMilli(), ext)
}
