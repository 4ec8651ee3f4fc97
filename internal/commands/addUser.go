package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"palaver/internal/api"
	"palaver/internal/config"
)

// AddUser creates a user through the admin API of a running server and
// prints the session token.
func AddUser(username string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.AddUserRequest{Username: username})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	result, err := post(fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr), reqBody)
	if err != nil {
		return err
	}

	fmt.Printf("\nUser Created Successfully!\n")
	printToken(result)
	return nil
}

// IssueToken prints a fresh session token for an existing user.
func IssueToken(userID string, cfg *config.Config) error {
	result, err := post(fmt.Sprintf("http://%s/admin/users/%s/token", cfg.AdminAddr, userID), nil)
	if err != nil {
		return err
	}
	printToken(result)
	return nil
}

func post(url string, body []byte) (api.TokenResponse, error) {
	var result api.TokenResponse

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return result, fmt.Errorf("admin request failed (Status: %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("failed to decode response: %w", err)
	}
	return result, nil
}

func printToken(result api.TokenResponse) {
	fmt.Printf("User ID:    %s\n", result.UserID)
	fmt.Printf("Username:   %s\n", result.Username)
	fmt.Printf("Token:      %s\n", result.Token)
	fmt.Printf("Expires at: %s\n\n", result.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
}
