package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/akera-connector/pkg/config"
)

// ExampleNewConnectorConfig demonstrates creating a configuration with
// default values.
func ExampleNewConnectorConfig() {
	cfg := config.NewConnectorConfig("sports")

	fmt.Printf("Address: %s:%d\n", cfg.Connection.Host, cfg.Connection.Port)
	fmt.Printf("High water ratio: %.0f\n", cfg.Pool.HighWaterRatio)
	fmt.Printf("Discovery cache: %t\n", cfg.Discovery.Cache)

	// Output:
	// Address: localhost:3000
	// High water ratio: 2
	// Discovery cache: true
}

// ExampleFromOptions shows how the ORM settings object maps onto a
// configuration.
func ExampleFromOptions() {
	cfg, err := config.FromOptions("sports", map[string]interface{}{
		"host":            "akera.example.com",
		"port":            8900,
		"database":        "sports2000",
		"connectPoolSize": 4,
		"connectTimeout":  2500,
	})
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Printf("Database: %s\n", cfg.Connection.Database)
	fmt.Printf("Pool size: %d\n", cfg.Pool.ConnectPoolSize)
	fmt.Printf("Timeout: %s\n", cfg.Pool.ConnectTimeout)

	// Output:
	// Database: sports2000
	// Pool size: 4
	// Timeout: 2.5s
}
