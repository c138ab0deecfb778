package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvMonthlyCancelLimit   = "MONTHLY_CANCEL_LIMIT"
	EnvCancelNoticeHours    = "CANCEL_NOTICE_HOURS"
	EnvCoachMaxStudents     = "COACH_MAX_STUDENTS"
	EnvMaxCoachesPerStudent = "MAX_COACHES_PER_STUDENT"

	EnvSlotLockTTL   = "SLOT_LOCK_TTL"
	EnvSweepInterval = "SWEEP_INTERVAL"

	EnvCompensationInterval    = "COMPENSATION_INTERVAL"
	EnvCompensationMaxAttempts = "COMPENSATION_MAX_ATTEMPTS"

	EnvKafkaBrokers  = "KAFKA_BROKERS"
	EnvKafkaTopic    = "KAFKA_TOPIC"
	EnvKafkaDLQTopic = "KAFKA_DLQ_TOPIC"
	EnvKafkaGroupID  = "KAFKA_GROUP_ID"
)
