// Package motion classifies and groups Live2D motion3.json files into
// facial vs. body motions so the conversation core can play an expression
// and a gesture at once without fighting over the same model parameters.
package motion

import "strings"

// Kind is the coarse classification of a motion file based on which model
// parameters its curves drive.
type Kind string

const (
	KindFace    Kind = "face"
	KindBody    Kind = "body"
	KindMixed   Kind = "mixed"
	KindUnknown Kind = "unknown"
)

// Curve is one parameter curve from a motion3.json file. Only the
// parameter Id is needed for classification; segment data belongs to the
// rendering layer, not this resolver.
type Curve struct {
	Id string
}

// facialIndicators and bodyIndicators are substring sets checked against a
// lowercased parameter Id, mirroring the original backend's heuristic
// classifier.
var facialIndicators = []string{
	"eye", "brow", "mouth", "tere", "tear", "sweat", "rage",
	"parameye", "parambrow", "parammouth", "paramteary",
}

var bodyIndicators = []string{
	"body_angle", "arm", "breath", "hair", "position", "rotation",
	"paramposition", "paramrotation", "paramarm", "parambreath",
}

// Classification is the result of analyzing one motion's curves.
type Classification struct {
	Kind                Kind
	FaceParamCount      int
	BodyParamCount      int
	AffectedFaceParams  []string
	AffectedBodyParams  []string
}

// Classify inspects curves and determines whether a motion primarily
// drives facial parameters, body parameters, both (mixed), or neither
// (unknown, e.g. an empty or unrecognized curve set).
func Classify(curves []Curve) Classification {
	faceSeen := map[string]struct{}{}
	bodySeen := map[string]struct{}{}

	for _, curve := range curves {
		id := strings.ToLower(curve.Id)
		switch {
		case containsAny(id, facialIndicators):
			faceSeen[id] = struct{}{}
		case containsAny(id, bodyIndicators):
			bodySeen[id] = struct{}{}
		}
	}

	c := Classification{
		FaceParamCount:     len(faceSeen),
		BodyParamCount:     len(bodySeen),
		AffectedFaceParams: keys(faceSeen),
		AffectedBodyParams: keys(bodySeen),
	}

	switch {
	case c.FaceParamCount == 0 && c.BodyParamCount == 0:
		c.Kind = KindUnknown
	case c.FaceParamCount > c.BodyParamCount*2:
		c.Kind = KindFace
	case c.BodyParamCount > c.FaceParamCount*2:
		c.Kind = KindBody
	default:
		c.Kind = KindMixed
	}
	return c
}

func containsAny(s string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
