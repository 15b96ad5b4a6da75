package main

import (
	"log"
	"os"

	"github.com/JoHi36/AnkiPlus-sub001/app"
)

func main() {
	if os.Getenv("POSTGRES_URL") == "" {
		app.InitMemoryStores()
	} else {
		app.MustInitDB()
	}
	app.InitStripe()
	router, err := app.NewRouter()
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}
	router.Run("0.0.0.0:8080")
}
