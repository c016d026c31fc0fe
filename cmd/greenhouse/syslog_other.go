//go:build windows || plan9

package main

import "errors"

func addSyslogHook() error {
	return errors.New("syslog is not available on this platform")
}
