// cmd/historian/main.go runs the asynchronous historian consumer: it pops
// match action records from the Redis queue and persists them to PostgreSQL.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/dwarveslive/unit-card-battles/internal/historian"
)

func main() {
	hs := historian.NewService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	log.Println("Historian shutdown complete.")
}
