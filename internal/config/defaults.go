package config

// NewDefaultConfig creates a new Config with default values
func NewDefaultConfig() Config {
	return Config{
		Core: Core{
			AllowAutoclean: true,
			Verbose:        true,
		},
		Trash: Trash{
			Directory: "~/.trash",
			LockFile:  "lock",
			MaxSize:   "1GB",
			MaxCount:  10_000_000,
		},
		Autoclean: Autoclean{
			MaxAgeDays:    90,
			SameNameLimit: 10,
			MaxCount:      1_000_000,
			MaxSize:       "512MB",
		},
		Logging: Logging{
			Enabled: true,
			Level:   "debug",
			Rotation: Rotation{
				MaxSize:  "10MB",
				MaxFiles: 3,
			},
		},
	}
}
