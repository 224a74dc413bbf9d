package motion

import (
	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/interaction"
)

// Motion is one named motion file with its curves, as loaded from a
// model's motion3.json.
type Motion struct {
	Name   string
	Curves []Curve
}

// Group is one named collection of motions sharing a group label, annotated
// with one Kind: Resolve uses the Kind of the group's first member, and
// ResolveManifest the Kind most of its members share. Members need not all
// share that Kind (an unclassifiable motion named "face_..." can land in
// face_other next to face motions).
type Group struct {
	Name  string
	Kind  Kind
	Names []string
}

// Plan is the resolved grouping for one avatar model.
type Plan struct {
	ModelID  string
	Groups   []Group
	Ungrouped []string // motions whose group could not be confidently assigned
}

// Resolver groups a model's raw motion list and flags when too large a
// fraction of motions end up ungrouped, signalling the motion data itself
// needs better naming conventions upstream.
type Resolver struct {
	ungroupedThreshold int // percent, 0-100
	eventBus           *bus.Bus
	log                zerolog.Logger
}

// NewResolver builds a Resolver. ungroupedThresholdPercent triggers a
// warning log (not a hard failure) when that percentage or more of a
// model's motions land in an "_other"/"unknown_other" bucket.
func NewResolver(ungroupedThresholdPercent int, eventBus *bus.Bus, log zerolog.Logger) *Resolver {
	return &Resolver{
		ungroupedThreshold: ungroupedThresholdPercent,
		eventBus:           eventBus,
		log:                log.With().Str("component", "motion.resolver").Logger(),
	}
}

// Resolve classifies and groups every motion for modelID, publishing
// bus.EventMotionResolved with the number of resulting groups of each kind.
func (r *Resolver) Resolve(key interaction.Key, modelID string, motions []Motion) Plan {
	groupsByName := make(map[string]*Group)
	var ungrouped []string

	faceGroups := map[string]struct{}{}
	bodyGroups := map[string]struct{}{}
	mixedGroups := map[string]struct{}{}
	unknownGroups := map[string]struct{}{}

	for _, m := range motions {
		class := Classify(m.Curves)
		groupName := GroupName(m.Name, class)

		if g, ok := groupsByName[groupName]; ok {
			g.Names = append(g.Names, m.Name)
		} else {
			groupsByName[groupName] = &Group{Name: groupName, Kind: class.Kind, Names: []string{m.Name}}
		}

		switch class.Kind {
		case KindFace:
			faceGroups[groupName] = struct{}{}
		case KindBody:
			bodyGroups[groupName] = struct{}{}
		case KindMixed:
			mixedGroups[groupName] = struct{}{}
		default:
			unknownGroups[groupName] = struct{}{}
		}

		if groupName == "face_other" || groupName == "body_other" || groupName == "mixed_other" || groupName == "unknown_other" {
			ungrouped = append(ungrouped, m.Name)
		}
	}

	groups := make([]Group, 0, len(groupsByName))
	for _, g := range groupsByName {
		groups = append(groups, *g)
	}

	if len(motions) > 0 {
		pct := len(ungrouped) * 100 / len(motions)
		if pct >= r.ungroupedThreshold {
			r.log.Warn().
				Str("model_id", modelID).
				Int("ungrouped_percent", pct).
				Msg("large fraction of motions could not be confidently grouped")
		}
	}

	if r.eventBus != nil {
		r.eventBus.Publish(bus.Event{
			Type: bus.EventMotionResolved,
			Key:  key,
			Payload: bus.MotionResolvedPayload{
				ModelID:        modelID,
				FaceMotions:    len(faceGroups),
				BodyMotions:    len(bodyGroups),
				MixedMotions:   len(mixedGroups),
				UnknownMotions: len(unknownGroups),
			},
		})
	}

	return Plan{ModelID: modelID, Groups: groups, Ungrouped: ungrouped}
}

// ResolveManifest resolves modelID's motions from a parsed model3.json.
// loadCurves fetches a motion file's parameter curves (the rendering layer
// owns actually reading motion3.json files; this package only needs their
// Ids to classify). When the manifest's motions are effectively one flat,
// oversized bucket, they are regrouped by content heuristic exactly as
// Resolve does; otherwise the manifest's own group names are kept verbatim.
func (r *Resolver) ResolveManifest(key interaction.Key, modelID string, manifest Manifest, loadCurves func(file string) []Curve) Plan {
	if manifest.needsSmartGrouping() {
		var motions []Motion
		for _, refs := range manifest.FileReferences.Motions {
			for _, ref := range refs {
				motions = append(motions, Motion{Name: motionNameFromFile(ref.File), Curves: loadCurves(ref.File)})
			}
		}
		return r.Resolve(key, modelID, motions)
	}

	groups := make([]Group, 0, len(manifest.FileReferences.Motions))
	faceGroups, bodyGroups, mixedGroups, unknownGroups := 0, 0, 0, 0
	total := 0

	for groupName, refs := range manifest.FileReferences.Motions {
		names := make([]string, 0, len(refs))
		counts := map[Kind]int{}
		for _, ref := range refs {
			names = append(names, motionNameFromFile(ref.File))
			counts[Classify(loadCurves(ref.File)).Kind]++
			total++
		}
		kind := dominantKind(counts)
		groups = append(groups, Group{Name: groupName, Kind: kind, Names: names})

		switch kind {
		case KindFace:
			faceGroups++
		case KindBody:
			bodyGroups++
		case KindMixed:
			mixedGroups++
		default:
			unknownGroups++
		}
	}

	if r.eventBus != nil {
		r.eventBus.Publish(bus.Event{
			Type: bus.EventMotionResolved,
			Key:  key,
			Payload: bus.MotionResolvedPayload{
				ModelID:        modelID,
				FaceMotions:    faceGroups,
				BodyMotions:    bodyGroups,
				MixedMotions:   mixedGroups,
				UnknownMotions: unknownGroups,
			},
		})
	}

	return Plan{ModelID: modelID, Groups: groups}
}

// Compatible reports whether a face-group motion and a body-group motion
// can play simultaneously: true whenever they come from different
// classification families (face vs. body), since a mixed-classified
// motion uses both and can never be safely combined with either.
func Compatible(a, b Kind) bool {
	if a == KindMixed || b == KindMixed {
		return false
	}
	return a != b
}

// Combination is one pairwise verdict between two motion groups.
type Combination struct {
	GroupA string
	GroupB string
	Reason string
}

// CompatibilityPlan classifies every group of a resolved Plan into its
// face/body/mixed buckets and reports, for every pair of groups, whether
// they can be played at once. It's a richer report than Compatible's bare
// boolean: callers get group names and a human-readable reason for every
// conflict, which is what drives the avatar runtime's "can I play X and Y
// right now" decisions.
type CompatibilityPlan struct {
	FaceOnlyGroups          []string
	BodyOnlyGroups          []string
	MixedGroups             []string
	SafeCombinations        []Combination
	ConflictingCombinations []Combination
}

// BuildCompatibilityPlan derives a CompatibilityPlan from a resolved Plan's
// groups.
func BuildCompatibilityPlan(groups []Group) CompatibilityPlan {
	var plan CompatibilityPlan
	for _, g := range groups {
		switch g.Kind {
		case KindFace:
			plan.FaceOnlyGroups = append(plan.FaceOnlyGroups, g.Name)
		case KindBody:
			plan.BodyOnlyGroups = append(plan.BodyOnlyGroups, g.Name)
		case KindMixed:
			plan.MixedGroups = append(plan.MixedGroups, g.Name)
		}
	}

	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			a, b := groups[i], groups[j]
			combo := Combination{GroupA: a.Name, GroupB: b.Name}

			switch {
			case a.Kind == KindMixed && b.Kind == KindMixed:
				combo.Reason = "both groups use mixed face and body parameters"
				plan.ConflictingCombinations = append(plan.ConflictingCombinations, combo)
			case a.Kind == KindMixed:
				combo.Reason = "mixed group shares " + string(b.Kind) + " parameters"
				plan.ConflictingCombinations = append(plan.ConflictingCombinations, combo)
			case b.Kind == KindMixed:
				combo.Reason = "mixed group shares " + string(a.Kind) + " parameters"
				plan.ConflictingCombinations = append(plan.ConflictingCombinations, combo)
			case a.Kind == b.Kind:
				combo.Reason = "both groups are " + string(a.Kind)
				plan.ConflictingCombinations = append(plan.ConflictingCombinations, combo)
			default:
				plan.SafeCombinations = append(plan.SafeCombinations, combo)
			}
		}
	}

	return plan
}
