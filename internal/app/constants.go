package app

import "time"

const (
	Name           = "wpplink"
	SourceURL      = "https://github.com/wpplink/wpplink"
	ConfigFilename = "config.json"
	DBFilename     = "wpplink.db"
	LogFilename    = "wpplink.log"
	DefaultIPPort  = 7000

	RecentTransactionsLoad = 50
	TransactionRetention   = 30 * 24 * time.Hour
	writerQueueCapacity    = 512
)
