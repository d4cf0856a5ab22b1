package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/troikatech/voice-bridge/pkg/utils"
)

func main() {
	baseURL := "http://localhost:8080"
	if u := os.Getenv("API_URL"); u != "" {
		baseURL = u
	}

	if len(os.Args) < 2 {
		log.Fatalf("usage: make-call <phone number>")
	}

	targetNumber := utils.NormalizePhone(os.Args[1])
	if !utils.ValidateE164(targetNumber) {
		log.Fatalf("invalid phone number: %s", os.Args[1])
	}

	fmt.Println("========================================")
	fmt.Printf("Making Call to %s\n", targetNumber)
	fmt.Println("========================================")
	fmt.Println()

	callURL := baseURL + "/outbound-call?number=" + url.QueryEscape(targetNumber)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(callURL)
	if err != nil {
		log.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	fmt.Printf("URL: %s\n", callURL)
	fmt.Printf("Status Code: %d\n", resp.StatusCode)
	fmt.Println()

	if resp.StatusCode == http.StatusOK {
		var result map[string]interface{}
		if err := json.Unmarshal(body, &result); err == nil {
			fmt.Println("✅ Call initiated successfully!")
			if callSid, ok := result["callSid"].(string); ok {
				fmt.Printf("Call SID: %s\n", callSid)
			}
			if message, ok := result["message"].(string); ok {
				fmt.Printf("Message: %s\n", message)
			}
		} else {
			fmt.Println("Response:", string(body))
		}
	} else {
		fmt.Printf("❌ Call initiation failed (Status: %d)\n", resp.StatusCode)
		fmt.Println("Response:", string(body))
		var errorResp map[string]interface{}
		if err := json.Unmarshal(body, &errorResp); err == nil {
			if detail, ok := errorResp["detail"].(string); ok {
				fmt.Printf("Detail: %s\n", detail)
			}
		}
	}

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("✅ Complete!")
	fmt.Println("========================================")
}
