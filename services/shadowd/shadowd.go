package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/relabs-tech/shadowsync/api"
	"github.com/relabs-tech/shadowsync/broker"
	"github.com/relabs-tech/shadowsync/core/csql"
	"github.com/relabs-tech/shadowsync/core/logger"
	"github.com/relabs-tech/shadowsync/events"
	"github.com/relabs-tech/shadowsync/shadowstore"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,default=" description:"password to the Postgres DB"`
	CACertFile       string `env:"CA_CERT_FILE,default=ca.crt" description:"the certificate authority certificate"`
	CertFile         string `env:"CERT_FILE,default=server.crt" description:"the broker server certificate"`
	KeyFile          string `env:"KEY_FILE,default=server.key" description:"the broker server key"`
	MQTTListen       string `env:"MQTT_LISTEN,default=:8883" description:"the MQTT TLS listen address"`
	HTTPListen       string `env:"HTTP_LISTEN,default=:3000" description:"the REST listen address"`
	JWTSecret        string `env:"JWT_SECRET,default=" description:"secret for the REST bearer token middleware, empty disables it"`
	KafkaBrokers     string `env:"KAFKA_BROKERS,default=" description:"comma separated Kafka brokers, empty disables change events"`
	KafkaTopic       string `env:"KAFKA_TOPIC,default=shadow-events" description:"the Kafka topic for change events"`
	S3Region         string `env:"S3_REGION,default=" description:"the AWS region of the archive bucket"`
	S3Bucket         string `env:"S3_BUCKET,default=" description:"the shadow archive bucket, empty disables archiving"`
	S3AccessID       string `env:"S3_ACCESS_ID,default=" description:"AWS access key ID for the archive bucket"`
	S3AccessKey      string `env:"S3_ACCESS_KEY,default=" description:"AWS secret access key for the archive bucket"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logrus.InfoLevel)

	postgres := service.Postgres
	if service.PostgresPassword != "" {
		postgres += " password=" + service.PostgresPassword
	}
	db := csql.OpenWithSchema(postgres, "shadowd")
	defer db.Close()

	store := shadowstore.New(db)
	if service.KafkaBrokers != "" {
		store.AddNotifier(events.NewKafkaNotifier(&events.KafkaBuilder{
			Brokers: splitList(service.KafkaBrokers),
			Topic:   service.KafkaTopic,
		}))
	}
	if service.S3Bucket != "" {
		archiver, err := events.NewS3Archiver(events.S3Configuration{
			AWSRegion:     service.S3Region,
			AWSBucketName: service.S3Bucket,
			AccessID:      service.S3AccessID,
			AccessKey:     service.S3AccessKey,
		})
		if err != nil {
			panic(err)
		}
		store.AddNotifier(archiver)
	}

	shadowBroker := broker.NewBroker(&broker.Builder{
		Store:      store,
		CACertFile: service.CACertFile,
		CertFile:   service.CertFile,
		KeyFile:    service.KeyFile,
		ListenAddr: service.MQTTListen,
	})

	router := mux.NewRouter()
	logger.AddRequestID(router)
	api.NewAPI(&api.Builder{
		Store:     store,
		Router:    router,
		Publisher: shadowBroker,
		JWTSecret: service.JWTSecret,
	})

	log.Println("listen on port", service.HTTPListen)
	go http.ListenAndServe(service.HTTPListen, router)

	shadowBroker.Run()
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
