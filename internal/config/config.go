package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName  string
	ServicePort  int
	Database     DatabaseConfig
	RabbitMQ     RabbitMQConfig
	Consensus    ConsensusConfig
	Plausibility PlausibilityConfig
	Validation   ValidationConfig
	Queue        QueueConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL                string
	IngestExchange     string
	SubmissionQueue    string
	SubmissionKey      string
	VoteQueue          string
	VoteKey            string
	EventsExchange     string
	VerifiedRoutingKey string
	RejectedRoutingKey string
	DLQQueue           string
	PrefetchCount      int
}

// ConsensusConfig holds the tunables of the verification state machine.
// All of them have production defaults; tests inject alternates.
type ConsensusConfig struct {
	VotesRequired      int
	ConsensusThreshold float64
	XPForVerification  int
	XPBonusConsensus   int
	XPForReading       int
	XPVerifiedBonus    int
}

// PlausibilityConfig holds plausibility filter settings
type PlausibilityConfig struct {
	DailyUsageCeilingFactor float64
	MinSamplesForCeiling    int
	SampleHistorySize       int
}

// ValidationConfig holds capture-timestamp validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// QueueConfig holds verification queue settings
type QueueConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "community-verify-worker"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8082),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                getEnv("RABBITMQ_URL", ""),
			IngestExchange:     getEnv("RABBITMQ_INGEST_EXCHANGE", "community-verify.ingest.exchange"),
			SubmissionQueue:    getEnv("RABBITMQ_SUBMISSION_QUEUE", "community-verify.readings.queue"),
			SubmissionKey:      getEnv("RABBITMQ_SUBMISSION_ROUTING_KEY", "reading.submitted"),
			VoteQueue:          getEnv("RABBITMQ_VOTE_QUEUE", "community-verify.votes.queue"),
			VoteKey:            getEnv("RABBITMQ_VOTE_ROUTING_KEY", "reading.vote"),
			EventsExchange:     getEnv("RABBITMQ_EVENTS_EXCHANGE", "community-verify.events.exchange"),
			VerifiedRoutingKey: getEnv("RABBITMQ_VERIFIED_ROUTING_KEY", "reading.verified"),
			RejectedRoutingKey: getEnv("RABBITMQ_REJECTED_ROUTING_KEY", "reading.rejected"),
			DLQQueue:           getEnv("RABBITMQ_DLQ_QUEUE", "community-verify.ingest.dlq"),
			PrefetchCount:      getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Consensus: ConsensusConfig{
			VotesRequired:      getEnvAsInt("CONSENSUS_VOTES_REQUIRED", 3),
			ConsensusThreshold: getEnvAsFloat("CONSENSUS_THRESHOLD", 0.67),
			XPForVerification:  getEnvAsInt("XP_FOR_VERIFICATION", 5),
			XPBonusConsensus:   getEnvAsInt("XP_BONUS_CONSENSUS", 10),
			XPForReading:       getEnvAsInt("XP_FOR_READING", 10),
			XPVerifiedBonus:    getEnvAsInt("XP_VERIFIED_BONUS", 5),
		},
		Plausibility: PlausibilityConfig{
			DailyUsageCeilingFactor: getEnvAsFloat("PLAUSIBILITY_CEILING_FACTOR", 10.0),
			MinSamplesForCeiling:    getEnvAsInt("PLAUSIBILITY_MIN_SAMPLES", 3),
			SampleHistorySize:       getEnvAsInt("PLAUSIBILITY_SAMPLE_HISTORY", 50),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10080),
		},
		Queue: QueueConfig{
			DefaultLimit: getEnvAsInt("VERIFICATION_QUEUE_DEFAULT_LIMIT", 10),
			MaxLimit:     getEnvAsInt("VERIFICATION_QUEUE_MAX_LIMIT", 50),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.Consensus.VotesRequired < 1 {
		return nil, fmt.Errorf("CONSENSUS_VOTES_REQUIRED must be at least 1, got %d", cfg.Consensus.VotesRequired)
	}
	if cfg.Consensus.ConsensusThreshold <= 0.5 || cfg.Consensus.ConsensusThreshold > 1 {
		return nil, fmt.Errorf("CONSENSUS_THRESHOLD must be in (0.5, 1.0], got %g", cfg.Consensus.ConsensusThreshold)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
