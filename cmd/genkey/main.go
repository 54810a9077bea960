package main

import (
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

// Prints a processing trigger token and the TRIGGER_TOKEN_HASH to configure.
// Usage: genkey [test|live]
func main() {
	env := domain.EnvLive
	if len(os.Args) > 1 && os.Args[1] == domain.EnvTest {
		env = domain.EnvTest
	}

	token, hash, err := domain.GenerateTriggerToken(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Printf("TOKEN=%s\nTRIGGER_TOKEN_HASH=%s\n", token, hash)
}
