package motion

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/normanking/companioncore/internal/companionerr"
)

// smartGroupingThreshold is the ungrouped-motion count past which a
// manifest's motions are re-grouped by content heuristic instead of taken
// at face value: past this size, a flat motion list is too unwieldy for a
// human to have hand-organized well.
const smartGroupingThreshold = 50

// MotionFileRef is one entry in a model3.json FileReferences.Motions list.
type MotionFileRef struct {
	File        string  `json:"File"`
	FadeInTime  float64 `json:"FadeInTime"`
	FadeOutTime float64 `json:"FadeOutTime"`
}

// Manifest is the subset of a Live2D *.model3.json this package needs:
// its declared motion groups. Motions maps a group name to the motion
// files in it; a manifest with everything dumped under one key (often ""
// or "Idle") is, for grouping purposes, ungrouped.
type Manifest struct {
	FileReferences struct {
		Motions map[string][]MotionFileRef `json:"Motions"`
	} `json:"FileReferences"`
}

// ParseManifest decodes a model3.json document.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, companionerr.New(companionerr.DecodeFailed, "motion.manifest", err)
	}
	return m, nil
}

// totalMotions counts every motion file reference across every declared
// group.
func (m Manifest) totalMotions() int {
	n := 0
	for _, refs := range m.FileReferences.Motions {
		n += len(refs)
	}
	return n
}

// needsSmartGrouping reports whether this manifest's declared groups should
// be discarded in favor of content-based grouping: true when the manifest
// effectively leaves its motions ungrouped (one declared group, or none)
// and there are more than smartGroupingThreshold of them. A manifest that
// already spreads motions across multiple declared groups is respected
// verbatim regardless of size.
func (m Manifest) needsSmartGrouping() bool {
	return len(m.FileReferences.Motions) <= 1 && m.totalMotions() > smartGroupingThreshold
}

// motionNameFromFile derives a motion's bare name from its file path, e.g.
// "motions/face_smile_01.motion3.json" -> "face_smile_01".
func motionNameFromFile(file string) string {
	base := path.Base(file)
	base = strings.TrimSuffix(base, ".motion3.json")
	base = strings.TrimSuffix(base, ".json")
	return base
}

// dominantKind picks the classification most of a group's motions share,
// so a declared group keeps a single Kind even if one or two of its
// motions classify oddly.
func dominantKind(counts map[Kind]int) Kind {
	var best Kind
	bestCount := -1
	for k, n := range counts {
		if n > bestCount {
			best, bestCount = k, n
		}
	}
	return best
}
