package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/config"
	"github.com/mamadbah2/pantry/internal/repository/mongodb"
	"github.com/mamadbah2/pantry/internal/seed"
	"github.com/mamadbah2/pantry/pkg/logger"
)

func main() {
	path := flag.String("file", "seed.yaml", "YAML file with products and recipes")
	envFile := flag.String("env", "", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	log := logger.Must(logger.New(cfg.Log.Level)).Named("seed")
	defer func() { _ = log.Sync() }()

	file, err := seed.LoadFile(*path)
	if err != nil {
		log.Fatal("failed to read seed file", zap.String("file", *path), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, log.Named("repo.mongodb"))
	if err != nil {
		log.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer func() { _ = repo.Close(context.Background()) }()

	res, err := seed.Apply(ctx, repo, file, time.Now())
	if err != nil {
		log.Fatal("seeding failed", zap.Int("products", res.Products), zap.Int("recipes", res.Recipes), zap.Error(err))
	}

	log.Info("seed applied", zap.String("file", *path), zap.Int("products", res.Products), zap.Int("recipes", res.Recipes))
}
