package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
)

// Health check utility for a running isinflow server.
func main() {
	base := flag.String("addr", "http://localhost:8080", "server base URL")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	fmt.Println("isinflow Health Check Utility")
	fmt.Println("-----------------------------")

	client := &http.Client{Timeout: *timeout}

	if err := checkServiceHealth(client, *base+"/health"); err != nil {
		color.Red("Service is NOT healthy: %v", err)
		os.Exit(1)
	}

	status, err := fetchSyncStatus(client, *base+"/status")
	if err != nil {
		color.Yellow("Service is up, sync status unavailable: %v", err)
		os.Exit(2)
	}
	if !status.Connected {
		color.Yellow("Service is up but disconnected from its sources (%d consecutive failures): %s",
			status.ConsecutiveFailures, status.LastError)
		os.Exit(2)
	}

	color.Green("Service is healthy! %d records in sync", status.Records)
}

func checkServiceHealth(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if body["status"] != "ok" {
		return fmt.Errorf("reported status %q", body["status"])
	}
	return nil
}

type syncStatus struct {
	Connected           bool   `json:"connected"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	LastError           string `json:"lastError"`
	Records             int    `json:"records"`
}

func fetchSyncStatus(client *http.Client, url string) (syncStatus, error) {
	var status syncStatus
	resp, err := client.Get(url)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(&status)
	return status, err
}
