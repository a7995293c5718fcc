package config

const (
	defaultTrainDir       = "~/datasets/miniimagenet/train"
	defaultEvalDir        = "~/datasets/miniimagenet/test"
	defaultImageWidth     = 84
	defaultImageHeight    = 84
	defaultNWay           = 5
	defaultKShot          = 1
	defaultKQuery         = 15
	defaultMetaBatchSize  = 4
	defaultTotalEpisodes  = 200000
	defaultEvalEpisodes   = 600
	defaultCachePath      = "~/.cache/fewshot/filelist.json"
	defaultLoaderPrefetch = 2
	defaultStateDir       = "~/.local/share/fewshot"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Dataset: Dataset{
			TrainDir:    defaultTrainDir,
			EvalDir:     defaultEvalDir,
			ImageWidth:  defaultImageWidth,
			ImageHeight: defaultImageHeight,
		},
		Episode: Episode{
			NWay:          defaultNWay,
			KShot:         defaultKShot,
			KQuery:        defaultKQuery,
			MetaBatchSize: defaultMetaBatchSize,
			TotalEpisodes: defaultTotalEpisodes,
			EvalEpisodes:  defaultEvalEpisodes,
		},
		Cache: Cache{
			Enabled: true,
			Path:    defaultCachePath,
		},
		Loader: Loader{
			Prefetch: defaultLoaderPrefetch,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
