package config

const (
	defaultConfigPath         = "~/.config/detectd/config.toml"
	defaultWatchDir           = "/dev/shm"
	defaultTriggerName        = "detect.start"
	defaultImageName          = "detect.jpg"
	defaultVideoName          = "detect.mp4"
	defaultOutputName         = "detect.out"
	defaultStagingName        = "detect.tmp"
	defaultThumbnailName      = "detect.thumb.jpg"
	defaultLogDir             = "~/.local/share/detectd/logs"
	defaultPollIntervalMS     = 1000
	defaultExpectedWidth      = 1024
	defaultExpectedHeight     = 768
	defaultSampleStride       = 50
	defaultThumbnailFrame     = 2
	defaultDecodeTimeout      = 300
	defaultThumbnailQuality   = 85
	defaultDetectorThreshold  = 0.5
	defaultDetectorMaxBoxes   = 100
	defaultDetectorTimeout    = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogMaxSizeMB       = 50
	defaultLogMaxBackups      = 5
	defaultLogRetentionDays   = 30
	defaultCoordinateFormat   = CoordinatesFloat
	defaultDetectorWorkerName = "detectnet-worker"
)

// Coordinate formats accepted by output.coordinates.
const (
	CoordinatesFloat = "float"
	CoordinatesInt   = "int"
)

// Stage triggers accepted by detectors[].trigger.
const (
	TriggerAlways              = "always"
	TriggerIfPrimaryNonEmpty   = "if-primary-nonempty"
	TriggerOncePerJobIfPrimary = "once-per-job-if-primary-nonempty"
)

// Default returns a Config populated with repository defaults. The default
// stages mirror the classic pedestrian plus face pairing.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:  defaultWatchDir,
			Trigger:   defaultTriggerName,
			Image:     defaultImageName,
			Video:     defaultVideoName,
			Output:    defaultOutputName,
			Staging:   defaultStagingName,
			Thumbnail: defaultThumbnailName,
			LogDir:    defaultLogDir,
		},
		Watch: Watch{
			PollIntervalMS: defaultPollIntervalMS,
		},
		Video: Video{
			Enabled:              true,
			ExpectedWidth:        defaultExpectedWidth,
			ExpectedHeight:       defaultExpectedHeight,
			SampleStride:         defaultSampleStride,
			ThumbnailFrame:       defaultThumbnailFrame,
			DecodeTimeoutSeconds: defaultDecodeTimeout,
			FFmpegBinary:         "ffmpeg",
			FFprobeBinary:        "ffprobe",
		},
		Thumbnail: Thumbnail{
			Enabled: true,
			Quality: defaultThumbnailQuality,
		},
		Output: Output{
			Coordinates: defaultCoordinateFormat,
			SkipEmpty:   true,
		},
		Detectors: []Detector{
			{
				Name:           "ped",
				Command:        defaultDetectorWorkerName,
				Args:           []string{"--network", "pednet"},
				Threshold:      defaultDetectorThreshold,
				MaxBoxes:       defaultDetectorMaxBoxes,
				Trigger:        TriggerAlways,
				TimeoutSeconds: defaultDetectorTimeout,
			},
			{
				Name:           "face",
				Command:        defaultDetectorWorkerName,
				Args:           []string{"--network", "facenet"},
				Threshold:      defaultDetectorThreshold,
				MaxBoxes:       defaultDetectorMaxBoxes,
				Trigger:        TriggerIfPrimaryNonEmpty,
				TimeoutSeconds: defaultDetectorTimeout,
			},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
