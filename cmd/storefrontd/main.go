package main

import (
	"log"

	"storefront/services/storefrontd"
)

func main() {
	if err := storefrontd.Main(); err != nil {
		log.Fatalf("storefrontd: %v", err)
	}
}
