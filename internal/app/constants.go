package app

const (
	Name           = "xbee-go"
	SourceURL      = "https://github.com/kscape/xbee-go"
	ConfigFilename = "config.json"
	DBFilename     = "journal.db"
	LogFilename    = "app.log"
)
