package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"quay-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (entity and link store)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"quay"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (durable notification queue + DLQ + dedup)
	RedisHost         string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort         int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB           int           `env:"REDIS_DB" env-default:"0"`
	RedisPoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"20"`
	RedisMinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" env-default:"5"`
	RedisDialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	RedisReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" env-default:"10s"`

	// Ingestion consumer
	QueueStream           string        `env:"QUEUE_STREAM" env-default:"quay:notifications"`
	QueueConsumerGroup    string        `env:"QUEUE_CONSUMER_GROUP" env-default:"quay-ingest"`
	QueueDLQStream        string        `env:"QUEUE_DLQ_STREAM" env-default:"quay:dlq"`
	ConsumerEnabled       bool          `env:"CONSUMER_ENABLED" env-default:"true"`
	ConsumerBatchSize     int64         `env:"CONSUMER_BATCH_SIZE" env-default:"10"`
	ConsumerBlockTimeout  time.Duration `env:"CONSUMER_BLOCK_TIMEOUT" env-default:"5s"`
	ConsumerMaxRetries    int           `env:"CONSUMER_MAX_RETRIES" env-default:"3"`
	ConsumerClaimInterval time.Duration `env:"CONSUMER_CLAIM_INTERVAL" env-default:"30s"`
	ConsumerDedupEnabled  bool          `env:"CONSUMER_DEDUP_ENABLED" env-default:"true"`
	ConsumerDedupTTL      time.Duration `env:"CONSUMER_DEDUP_TTL" env-default:"24h"`

	// Kafka producer (link/entity events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"link-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Graph mirror (Memgraph/Neo4j)
	GraphEnabled          bool          `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost           string        `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort           int           `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser           string        `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword       string        `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBMaxPoolSize    int           `env:"GRAPH_DB_MAX_POOL_SIZE" env-default:"10"`
	GraphDBConnectTimeout time.Duration `env:"GRAPH_DB_CONNECT_TIMEOUT" env-default:"5s"`

	// Tracing
	TracingEnabled      bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingOTLPEndpoint string `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4317"`
	TracingOTLPProtocol string `env:"TRACING_OTLP_PROTOCOL" env-default:"grpc"`
	TracingInsecure     bool   `env:"TRACING_INSECURE" env-default:"true"`

	// Linking engine
	BatchUpsertChunkSize int `env:"BATCH_UPSERT_CHUNK_SIZE" env-default:"100"`
}
