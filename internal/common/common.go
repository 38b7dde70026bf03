package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey       = "X-API-Key" // #nosec G101 - header name constant, not a credential
	HeaderContentType  = "Content-Type"
	HeaderRequestID    = "X-Request-ID"
	ContentTypeJSON    = "application/json"
	HeaderAllowOrigin  = "Access-Control-Allow-Origin"
	HeaderAllowMethods = "Access-Control-Allow-Methods"
	HeaderAllowHeaders = "Access-Control-Allow-Headers"
)

// CORS values returned to browsers
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "POST, OPTIONS"
	CORSAllowHeaders = "Content-Type"
)

// API paths
const (
	PathRoot       = "/"
	PathTranscribe = "/transcribe"
)

// Secret identifiers
const (
	SecretAPIKeyID           = "youtube-transcription-http-api-key" // #nosec G101 - identifier, not a credential
	SecretAPIKeyField        = "http-api-key"
	SecretTranscriptionKeyID = "openai-api-key" // #nosec G101 - identifier, not a credential
)

// Defaults and limits
const (
	DefaultRateLimit    = 10
	DefaultRateBurst    = 2
	SQLiteBusyTimeoutMS = 5000
	RedisKeyPrefix      = "transcript:"
)

// Subdirectory names
const (
	WorkDirName = "work"
)
