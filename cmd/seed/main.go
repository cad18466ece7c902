package main

import (
	"log"

	"servipay/config"
	"servipay/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	gormDB, err := db.NewDB(cfg.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	if err := db.SeedUsers(gormDB); err != nil {
		log.Fatalf("seed users failed: %v", err)
	}

	log.Println("demo users seeded")
}
