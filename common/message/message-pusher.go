package message

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/devprobe/apidiag/common/config"
)

const pushTimeout = 5 * time.Second

type pushRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Token       string `json:"token"`
}

type pushResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Enabled reports whether a pusher endpoint is configured.
func Enabled() bool {
	return config.MessagePusherAddress != ""
}

// SendMessage delivers a diagnostic notification to the configured message
// pusher service. Returns an error when no pusher is configured.
func SendMessage(ctx context.Context, title string, content string) error {
	if !Enabled() {
		return errors.New("message pusher address is not set")
	}

	payload, err := json.Marshal(pushRequest{
		Title:       title,
		Description: content,
		Content:     content,
		Token:       config.MessagePusherToken,
	})
	if err != nil {
		return errors.Wrap(err, "marshal push request")
	}

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		config.MessagePusherAddress, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build push request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send push request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var res pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return errors.Wrap(err, "decode push response")
	}
	if !res.Success {
		return errors.New(res.Message)
	}

	return nil
}
