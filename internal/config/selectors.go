package config

import "fmt"

// SelectorsConfig holds ordered CSS candidate lists for the chat client.
// The first candidate that matches wins.
type SelectorsConfig struct {
	AuthCode   []string `yaml:"auth_code"`
	LoggedIn   []string `yaml:"logged_in"`
	Unread     []string `yaml:"unread"`
	Incoming   []string `yaml:"incoming"`
	Input      []string `yaml:"input"`
	SendButton []string `yaml:"send_button"`
}

// DefaultSelectors returns selectors for WhatsApp Web.
func DefaultSelectors() SelectorsConfig {
	return SelectorsConfig{
		AuthCode: []string{
			"canvas[aria-label='Scan me!']",
			"canvas[data-testid='qrcode']",
			"canvas.qr-code",
		},
		LoggedIn: []string{
			"div[data-testid='chat-list']",
			"div._3YewW",
			"div[data-testid='default-user']",
		},
		Unread:     []string{`span[aria-label="UNREAD"]`},
		Incoming:   []string{"div.message-in"},
		Input:      []string{`div[contenteditable="true"]`},
		SendButton: []string{`button[aria-label="Send"]`},
	}
}

// Validate ensures every list has at least one candidate.
func (s SelectorsConfig) Validate() error {
	lists := []struct {
		name string
		sels []string
	}{
		{"auth_code", s.AuthCode},
		{"logged_in", s.LoggedIn},
		{"unread", s.Unread},
		{"incoming", s.Incoming},
		{"input", s.Input},
	}
	for _, l := range lists {
		if len(l.sels) == 0 {
			return fmt.Errorf("selectors.%s must list at least one candidate", l.name)
		}
	}
	return nil
}
