package processor

// Subjects partition the catalog index: every entry files under exactly
// one, and rebuild jobs regenerate one subject's index at a time.
var knownSubjects = map[string]struct{}{
	"Generic_Markdown":          {},
	"Greek_Lexicon":             {},
	"Hebrew-Aramaic_Lexicon":    {},
	"Bible":                     {},
	"Aligned_Bible":             {},
	"Greek_New_Testament":       {},
	"Hebrew_Old_Testament":      {},
	"Translation_Academy":       {},
	"Translation_Questions":     {},
	"Translation_Words":         {},
	"Translation_Notes":         {},
	"TSV_Translation_Notes":     {},
	"Open_Bible_Stories":        {},
	"OBS_Study_Notes":           {},
	"OBS_Study_Questions":       {},
	"OBS_Translation_Notes":     {},
	"OBS_Translation_Questions": {},
}

// resourceSubjects maps a repository's resource identifier to the
// catalog subject its entries file under. Several identifiers share a
// subject; some legacy ones carry the wrong subject in their manifest,
// so the table is authoritative, not the payload.
var resourceSubjects = map[string]string{
	"obs":    "Open_Bible_Stories",
	"obs-sn": "OBS_Study_Notes",
	"obs-sq": "OBS_Study_Questions",
	"obs-tn": "OBS_Translation_Notes",
	"obs-tq": "OBS_Translation_Questions",
	"obs-sg": "Generic_Markdown",

	"bible": "Bible",
	"reg":   "Bible",
	"ulb":   "Bible",
	"udb":   "Bible",

	"ta": "Translation_Academy",
	"tn": "Translation_Notes",
	"tq": "Translation_Questions",
	"tw": "Translation_Words",

	"ugl":  "Greek_Lexicon",
	"uhal": "Hebrew-Aramaic_Lexicon",
}

// SubjectFor resolves a resource identifier to its catalog subject.
func SubjectFor(resourceID string) (string, bool) {
	subject, ok := resourceSubjects[resourceID]
	return subject, ok
}

// KnownSubject reports whether subject is a member of the catalog's
// subject set.
func KnownSubject(subject string) bool {
	_, ok := knownSubjects[subject]
	return ok
}

// Subjects returns the full subject set in unspecified order.
func Subjects() []string {
	out := make([]string, 0, len(knownSubjects))
	for s := range knownSubjects {
		out = append(out, s)
	}
	return out
}
