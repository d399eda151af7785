// Package main provides a lightweight health check utility for containers.
// It is statically compiled for minimal images where wget and curl are
// unavailable.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

const (
	defaultPort    = "3001"
	requestTimeout = 5 * time.Second
)

// buildAddress returns the loopback address for the given port. The literal
// 127.0.0.1 is used instead of "localhost" because scratch images have no
// /etc/hosts.
func buildAddress(port string) string {
	return "127.0.0.1:" + port
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	client := &http.Client{
		Timeout: requestTimeout,
	}

	resp, err := client.Get("http://" + buildAddress(port) + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	// defer won't run past os.Exit, close explicitly
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check returned non-OK status: %d\n", resp.StatusCode)
		os.Exit(1)
	}

	os.Exit(0)
}
