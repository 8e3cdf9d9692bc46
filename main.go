package main

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/oauth2"

	"github.com/copaint/copaint/api"
	"github.com/copaint/copaint/cache/redis"
	"github.com/copaint/copaint/mq/sqsmq"
	"github.com/copaint/copaint/store/dynamo"
)

const (
	DynamoDBTable     = "CoPaint"
	SQSFilePurgeQueue = "FilePurgeQueue"
)

func main() {
	ctx := context.Background()
	devMode := os.Getenv("DEV_MODE") == "true"

	copaintStore, err := dynamo.NewDynamoCoPaintStore(ctx, devMode, os.Getenv("DYNAMODB_ENDPOINT"), DynamoDBTable)
	if err != nil {
		log.Fatalf("Failed to create dynamodb store: %v", err)
	}

	purgeQueue, err := sqsmq.NewSQSMessageQueue(ctx, devMode, os.Getenv("SQS_ENDPOINT"), SQSFilePurgeQueue)
	if err != nil {
		log.Fatalf("Failed to create SQS MQ: %v", err)
	}

	copaintCache, err := redis.NewRedisCoPaintCache(ctx, devMode, os.Getenv("REDIS_ENDPOINT"))
	if err != nil {
		log.Fatalf("Failed to create redis cache: %v", err)
	}

	appOrigin := os.Getenv("APP_ORIGIN")
	if appOrigin == "" {
		log.Fatal("APP_ORIGIN must be set")
	}

	var oauthConfigs = map[string]*oauth2.Config{
		"github": {
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			RedirectURL:  appOrigin + "/auth/callback",
		},
		"google": {
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  appOrigin + "/auth/callback",
		},
	}

	jwtSecret, err := base64.StdEncoding.DecodeString(os.Getenv("JWT_SECRET"))
	if err != nil {
		log.Fatalf("Failed to decode base64 jwtSecret: %v", err)
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	copaintApi, err := api.NewCoPaintAPI(copaintStore, purgeQueue, copaintCache, oauthConfigs, jwtSecret, appOrigin, shutdownCtx)
	if err != nil {
		log.Fatalf("Failed to create copaint api: %v", err)
	}

	mux := http.NewServeMux()
	copaintApi.RegisterRoutes(mux, appOrigin)

	hostPort := "8080"
	if p := os.Getenv("HOST_PORT"); p != "" {
		hostPort = p
	}
	log.Printf("Starting server on host port: %s\n", hostPort)
	log.Fatal(http.ListenAndServe(":"+hostPort, mux))
}
