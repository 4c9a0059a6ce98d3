package games

// Payday2ID is the registry id of PAYDAY 2.
const Payday2ID = "core:payday_2"

// Options tunes a built-in game from user configuration.
type Options struct {
	InstallDir      string
	ScriptExtension string
	// ScriptThreshold is the number of script files a package must exceed to
	// be a script mod. Nil selects the default of 1.
	ScriptThreshold *int
	SteamRoots      []string
}

// NewPayday2 returns the PAYDAY 2 definition. Script mods (BLT/SuperBLT)
// are linked into mods/, everything else into assets/mod_overrides/.
func NewPayday2(opts Options) *SteamGame {
	ext := opts.ScriptExtension
	if ext == "" {
		ext = "lua"
	}
	threshold := 1
	if opts.ScriptThreshold != nil {
		threshold = max(*opts.ScriptThreshold, 0)
	}
	return &SteamGame{
		GameID:       Payday2ID,
		Name:         "PAYDAY 2",
		Provider:     "core:modworkshop",
		AppID:        218620,
		Folder:       "PAYDAY 2",
		ModsPath:     []string{"mods"},
		OverridePath: []string{"assets", "mod_overrides"},
		Classifier:   ExtensionClassifier{Ext: ext, Threshold: threshold},
		InstallDir:   opts.InstallDir,
		SteamRoots:   opts.SteamRoots,
	}
}

// Builtin returns every game shipped with voidmod, configured with opts
// keyed by game id.
func Builtin(opts map[string]Options) *Registry {
	return NewRegistry(
		NewPayday2(opts[Payday2ID]),
	)
}
