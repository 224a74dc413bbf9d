package motion

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/interaction"
)

func TestClassifyFaceVsBodyVsMixed(t *testing.T) {
	face := Classify([]Curve{{Id: "ParamEyeLOpen"}, {Id: "ParamMouthOpenY"}, {Id: "ParamBrowLY"}})
	require.Equal(t, KindFace, face.Kind)

	body := Classify([]Curve{{Id: "ParamArmLA"}, {Id: "ParamBodyAngleX"}, {Id: "ParamBreath"}})
	require.Equal(t, KindBody, body.Kind)

	mixed := Classify([]Curve{{Id: "ParamEyeLOpen"}, {Id: "ParamArmLA"}})
	require.Equal(t, KindMixed, mixed.Kind)

	unknown := Classify(nil)
	require.Equal(t, KindUnknown, unknown.Kind)
}

func TestGroupNameBucketsByEmotionAndGesture(t *testing.T) {
	require.Equal(t, "face_smile", GroupName("face_smile_01", Classification{Kind: KindFace}))
	require.Equal(t, "poses", GroupName("pose_victory", Classification{Kind: KindBody}))
	require.Equal(t, "idle", GroupName("idle_loop", Classification{Kind: KindBody}))
}

func TestResolvePublishesMotionResolvedEvent(t *testing.T) {
	b := bus.New(16, zerolog.Nop())
	defer b.Close()

	received := make(chan bus.MotionResolvedPayload, 1)
	unsub := b.Subscribe(func(e bus.Event) {
		if p, ok := e.Payload.(bus.MotionResolvedPayload); ok {
			received <- p
		}
	}, bus.EventMotionResolved)
	defer unsub()

	r := NewResolver(50, b, zerolog.Nop())
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	plan := r.Resolve(key, "m1", []Motion{
		{Name: "face_smile_01", Curves: []Curve{{Id: "ParamMouthOpenY"}, {Id: "ParamEyeLOpen"}}},
		{Name: "idle_loop", Curves: []Curve{{Id: "ParamBreath"}, {Id: "ParamArmLA"}}},
	})
	require.Len(t, plan.Groups, 2)

	select {
	case payload := <-received:
		require.Equal(t, "m1", payload.ModelID)
		require.Equal(t, 1, payload.FaceMotions)
		require.Equal(t, 1, payload.BodyMotions)
	case <-time.After(time.Second):
		t.Fatal("expected EventMotionResolved to be delivered")
	}
}

func TestCompatible(t *testing.T) {
	require.True(t, Compatible(KindFace, KindBody))
	require.False(t, Compatible(KindFace, KindFace))
	require.False(t, Compatible(KindMixed, KindBody))
}

func TestBuildCompatibilityPlan(t *testing.T) {
	groups := []Group{
		{Name: "A", Kind: KindFace},
		{Name: "B", Kind: KindBody},
		{Name: "C", Kind: KindMixed},
	}
	plan := BuildCompatibilityPlan(groups)

	require.Equal(t, []string{"A"}, plan.FaceOnlyGroups)
	require.Equal(t, []string{"B"}, plan.BodyOnlyGroups)
	require.Equal(t, []string{"C"}, plan.MixedGroups)

	require.Len(t, plan.SafeCombinations, 1)
	require.Equal(t, Combination{GroupA: "A", GroupB: "B"}, plan.SafeCombinations[0])

	require.Len(t, plan.ConflictingCombinations, 2)
	byPair := map[[2]string]string{}
	for _, c := range plan.ConflictingCombinations {
		byPair[[2]string{c.GroupA, c.GroupB}] = c.Reason
	}
	require.Contains(t, byPair[[2]string{"A", "C"}], "face")
	require.Contains(t, byPair[[2]string{"B", "C"}], "body")
}

func TestResolveManifestKeepsDeclaredGroupsVerbatim(t *testing.T) {
	b := bus.New(16, zerolog.Nop())
	defer b.Close()
	r := NewResolver(50, b, zerolog.Nop())
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	manifest := Manifest{}
	manifest.FileReferences.Motions = map[string][]MotionFileRef{
		"Smile": {{File: "motions/face_smile_01.motion3.json"}},
		"Idle":  {{File: "motions/idle_loop.motion3.json"}},
	}
	curves := map[string][]Curve{
		"motions/face_smile_01.motion3.json": {{Id: "ParamMouthOpenY"}, {Id: "ParamEyeLOpen"}},
		"motions/idle_loop.motion3.json":     {{Id: "ParamBreath"}, {Id: "ParamArmLA"}},
	}

	plan := r.ResolveManifest(key, "m1", manifest, func(file string) []Curve { return curves[file] })
	require.Len(t, plan.Groups, 2)
	names := map[string]Kind{}
	for _, g := range plan.Groups {
		names[g.Name] = g.Kind
	}
	require.Equal(t, KindFace, names["Smile"])
	require.Equal(t, KindBody, names["Idle"])
}

func TestResolveManifestSmartGroupsWhenUngroupedIsLarge(t *testing.T) {
	r := NewResolver(50, nil, zerolog.Nop())
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	manifest := Manifest{}
	var refs []MotionFileRef
	curves := map[string][]Curve{}
	for i := 0; i < 60; i++ {
		file := "motions/face_smile_" + string(rune('a'+i%26)) + ".motion3.json"
		refs = append(refs, MotionFileRef{File: file})
		curves[file] = []Curve{{Id: "ParamMouthOpenY"}, {Id: "ParamEyeLOpen"}}
	}
	manifest.FileReferences.Motions = map[string][]MotionFileRef{"": refs}

	plan := r.ResolveManifest(key, "m1", manifest, func(file string) []Curve { return curves[file] })
	require.Len(t, plan.Groups, 1, "60 identically-shaped face motions should collapse into one smart group")
	require.Equal(t, "face_smile", plan.Groups[0].Name)
}
