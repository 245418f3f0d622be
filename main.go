package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jinzhu/configor"
	log "github.com/sirupsen/logrus"
)

func main() {
	args := os.Args[1:]
	command := "migrate"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "migrate":
		runMigrateCommand(args)
	case "verify":
		runVerifyCommand(args)
	case "fixnames":
		runFixNamesCommand(args)
	default:
		panic(fmt.Errorf("Unknown command: %s", command))
	}
}

func runMigrateCommand(args []string) {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	configFilePath := flags.String("configfile", "", "Configuration File Path")
	csvFilePath := flags.String("csvfile", "", "Job CSV File Path")
	logLevel := flags.String("loglevel", "info", "Log Level")
	logFilePath := flags.String("logfile", "", "Log File Path")
	flags.Parse(args)

	if *configFilePath == "" {
		panic("Required flag -configfile not set but required")
	}
	if *csvFilePath == "" {
		panic("Required flag -csvfile not set but required")
	}

	setupLogging(*logLevel, *logFilePath)
	appConfig := loadConfig(*configFilePath)

	for _, line := range appConfig.ConfigStringArray() {
		log.Info(line)
	}

	store, storeErr := appConfig.Storage.ClientFromConfig()
	if storeErr != nil {
		panic(storeErr)
	}
	synapse := NewSynapseRestClient(appConfig, store)

	var notifier Notifier
	if appConfig.Notify.Topic != "" {
		var notifyErr error
		notifier, notifyErr = NewSNSNotifier(appConfig)
		if notifyErr != nil {
			panic(fmt.Errorf("Error creating SNS notifier: %s", notifyErr))
		}
	}

	fetcher := &GitFetcher{WorkDir: appConfig.WorkDir}
	migrator := NewMigrator(synapse, fetcher, notifier, appConfig)

	if appConfig.Schedule == "" {
		if runErr := migrator.Run(context.Background(), *csvFilePath); runErr != nil {
			panic(runErr)
		}
		return
	}

	runLock := new(sync.Mutex)
	scheduler := gocron.NewScheduler(time.Local)
	_, scheduleErr := scheduler.Cron(appConfig.Schedule).Do(func() {
		if !runLock.TryLock() {
			log.Warn("Another migration run is already in progress. Skipping.")
			return
		}
		defer runLock.Unlock()
		if runErr := migrator.Run(context.Background(), *csvFilePath); runErr != nil {
			log.Error(fmt.Sprintf("Migration run failed: %s", runErr))
		}
	})
	if scheduleErr != nil {
		panic(scheduleErr)
	}
	log.Info(fmt.Sprintf("Scheduled migration runs with cron expression: %s", appConfig.Schedule))
	scheduler.StartBlocking()
}

func runVerifyCommand(args []string) {
	flags := flag.NewFlagSet("verify", flag.ExitOnError)
	configFilePath := flags.String("configfile", "", "Configuration File Path")
	csvFilePath := flags.String("csvfile", "", "Processed CSV File Path")
	rootDir := flags.String("root", "", "Checkout Root Directory")
	checkRemote := flags.Bool("remote", false, "Compare local digests against Synapse")
	logLevel := flags.String("loglevel", "info", "Log Level")
	logFilePath := flags.String("logfile", "", "Log File Path")
	flags.Parse(args)

	if *csvFilePath == "" {
		panic("Required flag -csvfile not set but required")
	}
	if *rootDir == "" {
		panic("Required flag -root not set but required")
	}

	setupLogging(*logLevel, *logFilePath)

	var synapse SynapseClient
	if *checkRemote {
		if *configFilePath == "" {
			panic("Required flag -configfile not set but required with -remote")
		}
		appConfig := loadConfig(*configFilePath)
		client := NewSynapseRestClient(appConfig, nil)
		if loginErr := client.Login(context.Background()); loginErr != nil {
			panic(fmt.Errorf("Synapse login failed: %s", loginErr))
		}
		synapse = client
	}

	expandedRoot, expandErr := expandPath(*rootDir)
	if expandErr != nil {
		panic(expandErr)
	}

	verifier := NewVerifier(synapse, *checkRemote)
	if verifyErr := verifier.Run(context.Background(), *csvFilePath, expandedRoot); verifyErr != nil {
		panic(verifyErr)
	}
}

func runFixNamesCommand(args []string) {
	flags := flag.NewFlagSet("fixnames", flag.ExitOnError)
	startPath := flags.String("path", "", "Directory to fix names under")
	dryRun := flags.Bool("dry-run", false, "Report renames without changing anything")
	replaceChar := flags.String("replace-char", "", "Replacement for each invalid character")
	logLevel := flags.String("loglevel", "info", "Log Level")
	logFilePath := flags.String("logfile", "", "Log File Path")
	flags.Parse(args)

	if *startPath == "" {
		panic("Required flag -path not set but required")
	}
	if badChars := invalidNameChars(*replaceChar); len(badChars) > 0 {
		panic(fmt.Errorf("Replacement character is not valid: %s", *replaceChar))
	}

	setupLogging(*logLevel, *logFilePath)

	expanded, expandErr := expandPath(*startPath)
	if expandErr != nil {
		panic(expandErr)
	}

	fixer := &NameFixer{DryRun: *dryRun, ReplaceChar: *replaceChar}
	fixer.Execute(expanded)
}

func loadConfig(configFilePath string) AppConfig {
	var appConfig AppConfig
	configErr := configor.Load(&appConfig, configFilePath)
	if configErr != nil {
		panic(configErr)
	}

	expandedWorkDir, expandErr := expandPath(appConfig.WorkDir)
	if expandErr != nil {
		panic(expandErr)
	}
	appConfig.WorkDir = expandedWorkDir
	if mkdirErr := os.MkdirAll(appConfig.WorkDir, 0755); mkdirErr != nil {
		panic(mkdirErr)
	}

	return appConfig
}

func setupLogging(level, logFilePath string) {
	parsedLevel, levelErr := log.ParseLevel(level)
	if levelErr != nil {
		panic(fmt.Errorf("Invalid log level: %s", level))
	}
	log.SetLevel(parsedLevel)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if logFilePath != "" {
		fd, openErr := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if openErr != nil {
			panic(fmt.Errorf("Error opening log file: %s", openErr))
		}
		log.SetOutput(io.MultiWriter(os.Stderr, fd))
	}
}
