package main

import (
	"log"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
