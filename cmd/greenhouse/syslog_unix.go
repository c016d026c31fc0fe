//go:build !windows && !plan9

package main

import (
	"fmt"
	"log/syslog"

	log "github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func addSyslogHook() error {
	hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, "greenhouse")
	if err != nil {
		return fmt.Errorf("connect to syslog: %w", err)
	}
	log.AddHook(hook)
	return nil
}
