package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

type dbGauge struct {
	name  string
	help  string
	query string
}

var dbGauges = []dbGauge{
	{
		name:  "commands_open",
		help:  "Persisted commands without a terminal status",
		query: "SELECT COUNT(*) FROM commands WHERE status IN ('PENDING', 'SENT', 'RECEIVED', 'EXECUTING')",
	},
	{
		name:  "command_templates_active",
		help:  "Active command templates",
		query: "SELECT COUNT(*) FROM command_templates WHERE is_active",
	},
	{
		name:  "event_outbox_failed",
		help:  "Outbox events parked after a failed delivery",
		query: "SELECT COUNT(*) FROM event_outbox WHERE status = 'failed'",
	},
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	for _, gauge := range dbGauges {
		query := gauge.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + gauge.name, Help: gauge.help},
			func() float64 { return queryCount(db, logger, query) },
		))
	}
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	return float64(max(count, 0))
}
