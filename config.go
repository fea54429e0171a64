package simcore

import (
	"os"
	"strconv"
)

// WorldConfig is the resolved configuration the simulation core consumes at
// startup. Flag parsing and config files belong to the embedding launcher;
// by the time a WorldConfig reaches NewWorld every value is final.
type WorldConfig struct {
	RedisAddress  string
	RedisPassword string
	WorldID       string

	// Seed drives all simulation randomness. Together with the recorded
	// input stream it fully determines a run.
	Seed uint64

	// TickRate is the fixed cadence of the tick loop in ticks per second.
	TickRate uint64

	// CadenceTable overrides the fixed period of named domains, letting a
	// deployment slow a domain down without a rebuild.
	CadenceTable map[string]uint64

	// HistoryTicks is the lag compensation window: how many committed ticks
	// of combat state are rewindable.
	HistoryTicks uint64

	// ReceiptTicks is how many per-tick execution receipts are retained.
	ReceiptTicks uint64

	// BusRetentionCap is the hard bound, in ticks, on how long an
	// unconsumed topic message is retained for a stalled reader. Zero means
	// the bus default.
	BusRetentionCap uint64

	// DebugChecks enables per-tick state checksums and the RNG usage guard.
	// CI runs turn this on; production keeps it off and pays no checksum
	// cost.
	DebugChecks bool
}

func GetWorldConfig() WorldConfig {
	return WorldConfig{
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		WorldID:         getEnv("VOIDRUN_WORLD_ID", "world"),
		Seed:            getEnvUint64("VOIDRUN_SEED", 0),
		TickRate:        getEnvUint64("VOIDRUN_TICK_RATE", 20),
		HistoryTicks:    getEnvUint64("VOIDRUN_HISTORY_TICKS", 128),
		ReceiptTicks:    getEnvUint64("VOIDRUN_RECEIPT_TICKS", 10),
		BusRetentionCap: getEnvUint64("VOIDRUN_BUS_RETENTION_CAP", 0),
		DebugChecks:     getEnvBool("VOIDRUN_DEBUG_CHECKS", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) uint64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
