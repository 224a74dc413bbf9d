// Package tts provides TTS engine implementations satisfying
// engine.TTSEngine.
package tts

// Viseme is a mouth-shape category used to drive Live2D lip-sync while
// synthesized audio plays.
type Viseme string

const (
	VisemeSilent Viseme = "silent"
	VisemeAA     Viseme = "aa"
	VisemeEE     Viseme = "ee"
	VisemeII     Viseme = "ii"
	VisemeOO     Viseme = "oo"
	VisemeUU     Viseme = "uu"
	VisemeFV     Viseme = "fv"
	VisemeTH     Viseme = "th"
	VisemeMBP    Viseme = "mbp"
	VisemeLNTD   Viseme = "lntd"
	VisemeWQ     Viseme = "wq"
	VisemeSZ     Viseme = "sz"
	VisemeKG     Viseme = "kg"
	VisemeCHJ    Viseme = "chj"
	VisemeR      Viseme = "r"
)

// PhonemeToViseme maps IPA phonemes to visemes for lip-sync.
var PhonemeToViseme = map[string]Viseme{
	"ɑ": VisemeAA, "æ": VisemeAA, "ʌ": VisemeAA, "ə": VisemeAA,
	"i": VisemeEE, "ɪ": VisemeII, "e": VisemeEE, "ɛ": VisemeEE,
	"u": VisemeOO, "ʊ": VisemeUU, "o": VisemeOO, "ɔ": VisemeOO,

	"p": VisemeMBP, "b": VisemeMBP, "m": VisemeMBP,
	"f": VisemeFV, "v": VisemeFV,
	"θ": VisemeTH, "ð": VisemeTH,
	"t": VisemeLNTD, "d": VisemeLNTD, "n": VisemeLNTD, "l": VisemeLNTD,
	"s": VisemeSZ, "z": VisemeSZ,
	"ʃ": VisemeCHJ, "ʒ": VisemeCHJ, "tʃ": VisemeCHJ, "dʒ": VisemeCHJ,
	"k": VisemeKG, "g": VisemeKG, "ŋ": VisemeKG,
	"r": VisemeR, "ɹ": VisemeR,
	"w": VisemeWQ,
	"j": VisemeEE,
	"h": VisemeAA,

	"": VisemeSilent, " ": VisemeSilent,
}

// visemeForText approximates a single viseme for a chunk of text when the
// backend doesn't return phoneme alignment, using its last pronounceable
// rune as a rough proxy for the mouth shape at chunk end.
func visemeForText(text string) string {
	runes := []rune(text)
	for i := len(runes) - 1; i >= 0; i-- {
		key := string(runes[i])
		if v, ok := PhonemeToViseme[key]; ok {
			return string(v)
		}
	}
	return string(VisemeSilent)
}
