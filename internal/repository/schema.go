package repository

// Schema returns idempotent DDL for the ClickHouse backend.
//
// observations is the append-only source of truth. rounds and round_scores
// are derived caches rebuilt by rescoring, so both use ReplacingMergeTree.
func Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS finorax.observations (
			agent_id   String,
			asset_id   String,
			ts         DateTime64(9, 'UTC'),
			zi_score   Int8,
			round_id   Int64,
			ingested_at DateTime DEFAULT now()
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (round_id, agent_id, asset_id, ts)`,

		`CREATE TABLE IF NOT EXISTS finorax.asset_prices (
			asset_id String,
			ts       DateTime64(3, 'UTC'),
			price    Float64
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (asset_id, ts)
		TTL toDateTime(ts) + INTERVAL 90 DAY`,

		`CREATE TABLE IF NOT EXISTS finorax.rounds (
			id         Int64,
			start_time DateTime64(3, 'UTC'),
			end_time   DateTime64(3, 'UTC'),
			status     LowCardinality(String),
			updated_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id`,

		`CREATE TABLE IF NOT EXISTS finorax.round_scores (
			round_id           Int64,
			agent_id           String,
			total_score        Float64,
			rank               UInt32,
			observations_count UInt32,
			updated_at         DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (round_id, agent_id)`,
	}
}
