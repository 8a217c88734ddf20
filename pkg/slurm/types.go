package slurm

// SlurmConfig holds the whole sidecar configuration
type SlurmConfig struct {
	Sbatchpath        string `yaml:"SbatchPath"`
	Scancelpath       string `yaml:"ScancelPath"`
	Squeuepath        string `yaml:"SqueuePath"`
	Scontrolpath      string `yaml:"ScontrolPath"`
	Sidecarport       string `yaml:"SidecarPort"`
	Socket            string `yaml:"Socket"`
	DataRootFolder    string `yaml:"DataRootFolder"`
	HistoryDBPath     string `yaml:"HistoryDBPath"`
	Commandprefix     string `yaml:"CommandPrefix"`
	CondaSourceScript string `yaml:"CondaSourceScript"`
	BashPath          string `yaml:"BashPath"`
	StatusCacheTTL    string `yaml:"StatusCacheTTL"`
	VerboseLogging    bool   `yaml:"VerboseLogging"`
	ErrorsOnlyLogging bool   `yaml:"ErrorsOnlyLogging"`

	// Remote submission over SSH. When RemoteHost is empty all scheduler
	// commands run on the local host. Remote mode assumes DataRootFolder is
	// on a filesystem shared with the login node.
	RemoteHost       string `yaml:"RemoteHost"`
	RemotePort       int    `yaml:"RemotePort"`
	RemoteUser       string `yaml:"RemoteUser"`
	RemotePrivateKey string `yaml:"RemotePrivateKey"`
	RemotePassword   string `yaml:"RemotePassword"`

	set bool
}
