package cfg

type Cfg struct {
	// Locations
	FeedsDir  string
	OutputDir string
	CacheFile string

	// Run behaviour
	NoCache   bool
	SaveDays  int
	ShowSites bool
	Yes       bool
	Feeds     []string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	LogFile   string
	Version   string
}
