// Package main is a smoke-test utility that verifies the portal API is
// reachable and answering. It hits the health endpoint and the unauthenticated
// access-method probe for a hub and prints status and body, making it useful
// for quick post-deployment checks without external tooling.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	base := os.Getenv("CHB_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	urls := []string{base + "/health"}
	if len(os.Args) > 1 {
		urls = append(urls, base+"/public/hubs/"+os.Args[1]+"/access-method")
	}

	for _, url := range urls {
		resp, err := http.Get(url)
		if err != nil {
			fmt.Printf("GET %s: %v\n", url, err)
			os.Exit(1)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("GET %s: reading body: %v\n", url, err)
			os.Exit(1)
		}

		fmt.Printf("GET %s\nStatus: %d\nResponse: %s\n\n", url, resp.StatusCode, string(body))
	}
}
