package core

import "strings"

// Manifest fixes the product constants the engine works against: the required
// file set, the dependent-module preload order, and the path vocabulary used
// for pruning, quality assessment and ranking. These are configuration
// constants, not user input.
type Manifest struct {
	RequiredFiles []string // first entry is the primary module file
	Dependents    []string // logical module names preloaded after the primary

	Keywords    []string // path tokens that mark a branch as relevant
	AlwaysAllow []string // generic container names always descended through
	SkipDirs    []string // known-irrelevant system folders, never descended

	FastProbes   []string // likely install locations, relative to each scan root
	RootGuesses  []string // conventional walk roots, relative to each scan root
	Containers   []string // parents whose keyword-named children become walk roots ("" = the root itself)
	RootKeywords []string // tokens that qualify a container child as a walk root

	Locales []string // locale subfolder names appended to derived search dirs

	DefaultInstall string // canonical install subpath under the program-files root

	ModuleExt     string   // expected module file extension
	APIMarker     string   // generic public-API path segment
	APIName       string   // public-API folder name used in derived subdirs
	VersionMarker string   // current version path token
	OlderMarkers  []string // older version tokens, strongest first
	VersionName   string   // version folder name used in derived subdirs
	ProductToken  string   // segment token marking the product root
	FamilyTokens  []string // tokens that together name the product family
	DisplayName   string   // family display name combined with the version token

	ConflictSuffix string // PATH entries ending in this segment suffix are stripped
	SupportURL     string
}

// Primary returns the primary required file name.
func (m *Manifest) Primary() string { return m.RequiredFiles[0] }

// HasKeyword reports whether the canonicalized path contains any keyword token.
func (m *Manifest) HasKeyword(path string) bool {
	key := PathKey(path)
	for _, token := range m.Keywords {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

// TIAPortalV17 returns the manifest for the TIA Portal V17 Openness runtime.
func TIAPortalV17() *Manifest {
	return &Manifest{
		RequiredFiles: []string{
			"Siemens.Engineering.dll",
			"Siemens.Engineering.Hmi.dll",
			"Siemens.Engineering.AddIn.dll",
		},
		Dependents: []string{
			"Siemens.Engineering.Contract",
			"Siemens.Engineering.HW",
			"Siemens.Engineering.HW.Features",
			"Siemens.Engineering.Hmi",
			"Siemens.Engineering.AddIn",
		},
		Keywords: []string{"siemens", "portal", "tia", "automation", "publicapi", "openness", "v17"},
		AlwaysAllow: []string{
			"program files", "program files (x86)", "programdata",
			"siemens", "automation", "users", "public", "documents",
			"public documents", "portal", "tia portal", "tia-portal",
		},
		SkipDirs: []string{
			"$recycle.bin", "system volume information", "msocache", "config.msi",
			"windows", "temp", "tmp", "appdata", "perflogs", "recovery",
		},
		FastProbes: []string{
			"Program Files/Siemens/Automation/Portal V17/PublicAPI/V17",
			"Program Files (x86)/Siemens/Automation/Portal V17/PublicAPI/V17",
			"ProgramData/Siemens",
		},
		RootGuesses: []string{
			"Program Files/Siemens",
			"Program Files/Siemens/Automation",
			"Program Files/Siemens/Automation/Portal V17",
			"Program Files (x86)/Siemens",
			"Program Files (x86)/Siemens/Automation",
			"ProgramData/Siemens",
			"ProgramData/Siemens/Automation",
			"ProgramData/Siemens/Automation/Portal V17",
			"Siemens",
			"Portal V17",
			"TIA Portal",
		},
		Containers:   []string{"", "Program Files", "Program Files (x86)", "ProgramData"},
		RootKeywords: []string{"siemens", "portal", "tia", "automation", "publicapi", "openness"},
		Locales: []string{
			"en-US", "de-DE", "fr-FR", "es-ES", "it-IT", "pt-BR", "ru-RU",
			"pl-PL", "cs-CZ", "zh-CN", "ja-JP", "tr-TR", "ko-KR",
		},
		DefaultInstall: "Siemens/Automation/Portal V17/PublicAPI/V17",
		ModuleExt:      ".dll",
		APIMarker:      "publicapi",
		APIName:        "PublicAPI",
		VersionMarker:  "v17",
		OlderMarkers:   []string{"v16", "v15"},
		VersionName:    "V17",
		ProductToken:   "portal",
		FamilyTokens:   []string{"automation", "portal"},
		DisplayName:    "portal v17",
		ConflictSuffix: "software installs/bin",
		SupportURL:     "https://support.industry.siemens.com/cs/document/109815895/tia-portal-openness-referencing-the-siemens-engineering-dlls-and-assembly-resolve?dti=0&lc=en-WW",
	}
}
