package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "rally"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultLogLevel = "info"

	// Monthly cap on student-attributable cancellations.
	DefaultMonthlyCancelLimit = 3
	// Non-admin cancellations must happen at least this long before the
	// course starts.
	DefaultCancelNoticeHours = 24
	// Fallback coach capacity when the coach record carries none.
	DefaultCoachMaxStudents = 20
	// How many coaches a student may hold APPROVED relations with.
	DefaultMaxCoachesPerStudent = 2

	DefaultSlotLockTTL   = 10 * time.Second
	DefaultSweepInterval = 1 * time.Minute

	DefaultCompensationInterval    = 30 * time.Second
	DefaultCompensationMaxAttempts = 10

	DefaultKafkaTopic    = "rally.events"
	DefaultKafkaDLQTopic = "rally.events.dlq"

	DefaultPageSize    = 10
	MaxPageSize        = 100
)
