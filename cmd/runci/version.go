package main

import "fmt"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func versionString() string {
	return fmt.Sprintf("%s\ncommit: %s\nbuilt: %s", version, commit, date)
}
