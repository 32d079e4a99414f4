package common

// Sensor geometry the trained model was fit on
const (
	SegmentRows     = 200
	SegmentChannels = 9
	FFTBins         = 10
	FFTBlockSize    = FFTBins * SegmentChannels // 90
	StatCount       = 5                         // mean, std, max, min, range
	FeatureCount    = StatCount*SegmentChannels + FFTBlockSize
)

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvPort            = "PORT"
	EnvArtifactsDir    = "ARTIFACTS_DIR"
	EnvBundlePath      = "BUNDLE_PATH"
	EnvModelBackend    = "MODEL_BACKEND"
	EnvRemoteModelURL  = "REMOTE_MODEL_URL"
	EnvRemoteTimeout   = "REMOTE_MODEL_TIMEOUT"
	EnvMaxUploadBytes  = "MAX_UPLOAD_BYTES"
	EnvTopK            = "TOP_K"
	EnvStrictCells     = "STRICT_CELLS"
	EnvMetricsEnabled  = "METRICS_ENABLED"
	EnvLogLevel        = "LOG_LEVEL"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

// Model backends
const (
	BackendSoftmax = "softmax"
	BackendRemote  = "remote"
)

// Artifact file names inside an artifacts directory or bundle
const (
	ScalerArtifact = "scaler"
	ModelArtifact  = "model"
	LabelsArtifact = "labels"
)

// Configuration defaults
const (
	DefaultPort            = 8501
	DefaultArtifactsDir    = "artifacts"
	DefaultModelBackend    = BackendSoftmax
	DefaultMaxUploadBytes  = 1 << 20 // 1 MiB
	DefaultTopK            = 5
	DefaultLogLevel        = "info"
	DefaultRemoteTimeout   = "5s"
	DefaultShutdownTimeout = "10s"
)

// Validation constants
const (
	MinPort           = 1024
	MaxPort           = 65535
	MinTopK           = 1
	MaxTopK           = 50
	MinMaxUploadBytes = 1 << 10
	MaxMaxUploadBytes = 64 << 20
)

// Upload file extensions accepted by the upload surface
var AllowedExtensions = []string{".txt", ".csv"}
