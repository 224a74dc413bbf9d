package motion

import "strings"

// emotionKeywords and gestureKeywords drive the naming fallback used when a
// motion's classification alone isn't enough to produce a stable group
// name (e.g. two "face" motions for different emotions should not be
// merged into one group).
var emotionKeywords = []string{
	"angry", "anger", "mad", "rage",
	"sad", "cry", "tear", "upset", "sorrow",
	"happy", "smile", "laugh", "joy", "glad",
	"surprise", "shock", "gasp", "wow",
	"blush", "shy", "embarrassed",
	"normal", "neutral", "default",
	"wink", "closeeye", "blink",
	"trouble", "worry", "concern",
	"disgust", "yuck",
	"confusion", "daze",
}

var gestureKeywords = []string{
	"pose", "tilt", "head", "nod", "shake",
	"tap", "touch", "pat", "stroke",
	"wave", "point", "gesture",
	"dance", "move", "sway",
	"jump", "hop", "bounce",
	"idle", "stand", "wait",
}

func firstMatch(name string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return kw, true
		}
	}
	return "", false
}

// GroupName derives a stable group label for motionName given its
// classification, so e.g. "face_smile_01" and "smile_variant" both land in
// "face_smile" while a body gesture lands in its own "body_*"/"poses"
// group. Motions with no recognizable keyword fall into a catch-all
// "<kind>_other" bucket rather than being dropped.
func GroupName(motionName string, c Classification) string {
	name := strings.ToLower(motionName)

	switch c.Kind {
	case KindFace:
		if emotion, ok := firstMatch(name, emotionKeywords); ok {
			return "face_" + emotion
		}
		return "face_other"

	case KindBody:
		if gesture, ok := firstMatch(name, gestureKeywords); ok {
			switch gesture {
			case "pose":
				return "poses"
			case "nod":
				return "nod"
			case "idle":
				return "idle"
			default:
				return "body_" + gesture
			}
		}
		if emotion, ok := firstMatch(name, emotionKeywords); ok {
			return "body_" + emotion
		}
		return "body_other"

	case KindMixed:
		if emotion, ok := firstMatch(name, emotionKeywords); ok {
			return "mixed_" + emotion
		}
		return "mixed_other"

	default:
		if strings.HasPrefix(name, "face_") {
			return "face_other"
		}
		if _, ok := firstMatch(name, gestureKeywords); ok {
			return "body_other"
		}
		return "unknown_other"
	}
}
