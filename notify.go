package main

type Notifier interface {
	NotifyRunResults(jobFile string, stats *runStats) error
}
