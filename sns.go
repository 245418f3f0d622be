package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

func NewSNSNotifier(appConfig AppConfig) (Notifier, error) {
	var notifier Notifier

	cfg, cfgErr := config.LoadDefaultConfig(context.TODO(),
		config.WithSharedConfigProfile(appConfig.Notify.Profile),
		config.WithRegion(appConfig.Notify.Region))

	if cfgErr != nil {
		return notifier, cfgErr
	}
	snsClient := &SNSClient{sns.NewFromConfig(cfg)}
	notifier = &SNSNotifier{Client: snsClient, Topic: appConfig.Notify.Topic}

	return notifier, nil

}

type SNSClientIface interface {
	PublishMessage(msg *sns.PublishInput) error
}

type SNSClient struct {
	Client *sns.Client
}

func (s *SNSClient) PublishMessage(msg *sns.PublishInput) error {
	_, publishErr := s.Client.Publish(context.TODO(), msg)
	return publishErr
}

type SNSNotifier struct {
	Client SNSClientIface
	Topic  string
}

func (s *SNSNotifier) NotifyRunResults(jobFile string, stats *runStats) error {
	runErrors := stats.Errors()

	// if no errors we dont need to send any notification
	if len(runErrors) == 0 {
		return nil
	}

	// TODO: this has a maximum message size of 256KB, need to account for that
	notificationBody := ""
	if mappings := stats.Mappings(); len(mappings) > 0 {
		notificationBody += "Synapse Projects:\n"
		for _, line := range mappings {
			notificationBody += fmt.Sprintf("  - %s\n", line)
		}
		notificationBody += "\n"
	}
	notificationBody += "Errors:\n"
	for _, line := range runErrors {
		notificationBody += fmt.Sprintf("  - %s\n", line)
	}

	snsPublishReq := &sns.PublishInput{
		Message:  aws.String(notificationBody),
		TopicArn: aws.String(s.Topic),
		Subject:  aws.String(fmt.Sprintf("Migration Errors: %s", jobFile)),
	}
	publishErr := s.Client.PublishMessage(snsPublishReq)

	return publishErr

}
