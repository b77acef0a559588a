package main

import (
	"log"

	"github.com/thiagokokada/gitrails/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("gitrails: %v", err)
	}
}
