package clickhouse

import (
	"fmt"
	"regexp"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func validTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid clickhouse table name %q", table)
	}
	return nil
}

// Redelivered movements collapse on id during merges
func createMovementsDDL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id             String,
			class          LowCardinality(String),
			user           String,
			token          String,
			amount         UInt256,
			amount_usd     Decimal(76, 18),
			boosted_amount UInt256,
			time           DateTime('UTC'),
			block_number   UInt64,
			inserted_at    DateTime('UTC') DEFAULT now()
		)
		ENGINE = ReplacingMergeTree(inserted_at)
		PARTITION BY toYYYYMM(time)
		ORDER BY id`, table)
}

func insertMovementsSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (
			id,
			class,
			user,
			token,
			amount,
			amount_usd,
			boosted_amount,
			time,
			block_number
		)`, table)
}
