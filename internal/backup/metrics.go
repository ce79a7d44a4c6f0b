package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_backups_total",
		Help: "Ledger snapshot uploads, labeled by result",
	}, []string{"result"})

	lastBackupTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loyalty_backup_last_success_timestamp_seconds",
		Help: "Unix time of the last successful ledger snapshot upload",
	})
)
