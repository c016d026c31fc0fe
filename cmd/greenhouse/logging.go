package main

import (
	log "github.com/sirupsen/logrus"
)

func setupLogging(debug, useSyslog bool) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	if useSyslog {
		return addSyslogHook()
	}
	return nil
}
