package sink

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// TimescaleArchive keeps a queryable copy of every delivered sample.
type TimescaleArchive struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleArchive(db *sql.DB, table string) *TimescaleArchive {
	return &TimescaleArchive{db: db, tableName: table}
}

func (t *TimescaleArchive) Name() string { return "timescaledb" }

func (t *TimescaleArchive) WriteBatch(batch []domain.Delivery) error {
	if len(batch) == 0 {
		return nil
	}

	// Replays after a crash hit the unique key and are ignored.
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (scope, entity, metric, ts, value, statistic) VALUES ")

	args := make([]any, 0, len(batch)*6)
	for i, d := range batch {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6))
		args = append(args,
			d.Key.Scope,
			d.Key.Entity,
			d.Key.Metric,
			d.Sample.Timestamp,
			d.Sample.Value,
			string(d.Sample.Statistic),
		)
	}

	b.WriteString(" ON CONFLICT (scope, entity, metric, ts) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

var _ ports.Archive = (*TimescaleArchive)(nil)
