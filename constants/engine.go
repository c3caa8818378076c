package constants

// Engine names recognized by the orchestrator. "auto" lets the configured
// priority list decide.
const (
	EngineAuto      = "auto"
	EngineTesseract = "tesseract"
	EnginePDFText   = "pdftext"
	EngineRemote    = "remote"
)

// DefaultFallbackOrder is the priority list used when no explicit order is
// configured. The PDF text layer is tried first because it is exact and
// cheap when present.
var DefaultFallbackOrder = []string{EnginePDFText, EngineTesseract, EngineRemote}

// Preprocessing profiles, trading speed for denoising/contrast quality.
const (
	ProfileFast     = "fast"
	ProfileStandard = "standard"
	ProfileAccurate = "accurate"
)

// IsKnownProfile reports whether s names a preprocessing profile.
func IsKnownProfile(s string) bool {
	switch s {
	case ProfileFast, ProfileStandard, ProfileAccurate:
		return true
	}
	return false
}
