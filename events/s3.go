package events

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/shadowsync/core/logger"
	"github.com/relabs-tech/shadowsync/shadowstore"
)

// S3Archiver keeps a version history of shadow documents in an S3 bucket.
// Each accepted update is stored under things/{thing}/shadow/{version}.json,
// deletes are not archived. Uploads run in their own goroutine.
type S3Archiver struct {
	config aws.Config
	bucket string
	log    *logrus.Entry
}

// S3Configuration is the configuration for the S3Archiver.
type S3Configuration struct {
	AWSRegion     string
	AWSBucketName string
	AccessID      string
	AccessKey     string
}

// NewS3Archiver returns a new archiver.
func NewS3Archiver(c S3Configuration) (*S3Archiver, error) {
	if c.AWSBucketName == "" {
		return nil, fmt.Errorf("AWSBucketName must not be empty")
	}

	config, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithRegion(c.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessID, c.AccessKey, "")),
	)
	if err != nil {
		return nil, err
	}
	log := logger.Default()
	log.Debugln("shadow archive to S3 enabled")
	return &S3Archiver{config: config, bucket: c.AWSBucketName, log: log}, nil
}

// Notify implements the shadowstore.Notifier interface.
func (a *S3Archiver) Notify(thing string, operation shadowstore.Operation, payload []byte) {
	if operation != shadowstore.OperationUpdate {
		return
	}
	var record struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(payload, &record); err != nil {
		a.log.Errorln("archive shadow document:", err)
		return
	}
	key := fmt.Sprintf("things/%s/shadow/%d.json", thing, record.Version)
	body := make([]byte, len(payload))
	copy(body, payload)
	go a.upload(key, body)
}

func (a *S3Archiver) upload(key string, body []byte) {
	client := s3.NewFromConfig(a.config)
	_, err := client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.log.Errorln("could not upload", key, ":", err)
		return
	}
	a.log.Infoln("archived", key)
}
