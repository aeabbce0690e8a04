package common

// Dataset feature columns
const (
	ColCarat      = "carat"
	ColColor      = "color"
	ColClarity    = "clarity"
	ColViewings   = "viewings"
	ColPriceIndex = "price_index"
)

// Dataset target columns
const (
	ColFinalPrice = "final_price"
	ColSold       = "sold"
)

// Prediction output columns appended by batch predict
const (
	ColPredictedPrice     = "predicted_price"
	ColPredictedSaleProba = "predicted_sale_proba"
	ColRecommendedReserve = "recommended_reserve"
)

// RequiredColumns are the feature columns every registered dataset must carry.
var RequiredColumns = []string{ColCarat, ColColor, ColClarity, ColViewings, ColPriceIndex}

// NumericColumns are the continuous feature columns, in schema order.
var NumericColumns = []string{ColCarat, ColViewings, ColPriceIndex}

// CategoricalColumns are the discrete feature columns, in schema order.
var CategoricalColumns = []string{ColColor, ColClarity}

// Optimizer objectives
const (
	ObjectiveMaxPrice = "max_price"
	ObjectiveMaxProb  = "max_prob"
	ObjectiveTarget   = "target"
)

// Surface metrics
const (
	MetricFinalPrice      = "Final Price"
	MetricSaleProbability = "Sale Probability"
	MetricExpectedRevenue = "Expected Revenue"
)

// Model families
const (
	FamilyRidge    = "ridge"
	FamilySGD      = "sgd"
	FamilyBaseline = "baseline"
)

// ModelFamilies lists the trainable families; FamilyRidge is the default.
var ModelFamilies = []string{FamilyRidge, FamilySGD, FamilyBaseline}

// Environment variable keys
const (
	EnvConfigPath       = "GEMSCOPE_CONFIG"
	EnvDataPath         = "DATA_PATH"
	EnvBlobDir          = "BLOB_DIR"
	EnvBlobBucket       = "BLOB_BUCKET"
	EnvMetaDBPath       = "META_DB_PATH"
	EnvWarehousePath    = "WAREHOUSE_PATH"
	EnvAPIPort          = "API_PORT"
	EnvMetricsPort      = "METRICS_PORT"
	EnvPublicBaseURL    = "PUBLIC_BASE_URL"
	EnvSignSecret       = "SIGN_SECRET"
	EnvUploadTTL        = "UPLOAD_URL_TTL"
	EnvDownloadTTL      = "DOWNLOAD_URL_TTL"
	EnvAuthSecret       = "AUTH_SECRET"
	EnvAPIKeys          = "API_KEYS"
	EnvTokenTTL         = "TOKEN_TTL"
	EnvRegistryBaseURL  = "REGISTRY_BASE_URL"
	EnvRegistryAppID    = "REGISTRY_APP_ID"
	EnvRegistryToken    = "REGISTRY_TOKEN"
	EnvRegistryTimeout  = "REGISTRY_TIMEOUT"
	EnvOptimizerSamples = "OPTIMIZER_SAMPLES"
	EnvOptimizerSeed    = "OPTIMIZER_SEED"
	EnvSurfacePoints    = "SURFACE_POINTS"
	EnvModelCacheSize   = "MODEL_CACHE_SIZE"
	EnvModelCacheTTL    = "MODEL_CACHE_TTL"
	EnvJobWorkers       = "JOB_WORKERS"
	EnvJobQueueSize     = "JOB_QUEUE_SIZE"
	EnvJobRetention     = "JOB_RETENTION"
	EnvRequestTimeout   = "REQUEST_TIMEOUT"
	EnvRateLimitRPS     = "RATE_LIMIT_RPS"
	EnvCORSOrigins      = "CORS_ORIGINS"
	EnvLogLevel         = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultDataPath         = "data"
	DefaultBlobBucket       = "gemscope-data"
	DefaultAPIPort          = 8080
	DefaultMetricsPort      = 9090
	DefaultPublicBaseURL    = "http://localhost:8080"
	DefaultUploadTTL        = 15 // minutes
	DefaultDownloadTTL      = 60 // minutes
	DefaultTokenTTLHours    = 12
	DefaultRegistryBaseURL  = "https://api.instantdb.com"
	DefaultOptimizerSamples = 1000
	DefaultOptimizerSeed    = 42
	DefaultSurfacePoints    = 25
	DefaultModelCacheSize   = 32
	DefaultModelCacheTTL    = 3600 // seconds
	DefaultJobWorkers       = 2
	DefaultJobQueueSize     = 64
	DefaultJobRetention     = 24 // hours
	DefaultRateLimitRPS     = 20
)

// Reserve price heuristic coefficients: reserve = price * (base + span * prob).
const (
	ReserveBaseFraction = 0.8
	ReserveProbSpan     = 0.2
)

// Training constants
const (
	TrainSeed         = 42
	TrainHoldoutShare = 0.2
	PreviewRowCount   = 10
	MinTrainRows      = 5
)

// Common error messages
const (
	ErrMsgSignSecretRequired = "sign secret is required"
	ErrMsgAuthSecretRequired = "auth secret is required when API keys are configured"
	ErrMsgDataPathRequired   = "data path is required"
	ErrMsgBadAPIPort         = "api port must be between 1024 and 65535"
	ErrMsgBadMetricsPort     = "metrics port must be between 1024 and 65535"
)

// Validation bounds
const (
	MinPort             = 1024
	MaxPort             = 65535
	MaxOptimizerSamples = 200000
	MaxSurfacePoints    = 200
	MinModelCacheSize   = 1
	MaxModelCacheSize   = 1024
	MaxJobWorkers       = 32
	MaxRateLimitRPS     = 1000
)
