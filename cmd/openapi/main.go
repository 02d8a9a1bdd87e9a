package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/af-corp/copilot-relay/internal/openapi"
)

func main() {
	dir := flag.String("out", "interfaces", "directory to write openapi.json into")
	flag.Parse()

	path, err := openapi.WriteFile(*dir)
	if err != nil {
		log.Fatalf("failed to write OpenAPI schema: %v", err)
	}
	fmt.Printf("wrote OpenAPI schema to %s\n", path)
}
