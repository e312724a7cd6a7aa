package mailer

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

//go:embed "templates"
var templateFS embed.FS

// DefaultEndpoint is the SMTP2GO send API
const DefaultEndpoint = "https://api.smtp2go.com/v3/email/send"

const sendAttempts = 3

// Mailer sends templated email through the SMTP2GO HTTP API
type Mailer struct {
	apiKey     string
	sender     string
	endpoint   string
	client     *http.Client
	retryDelay time.Duration
}

// SMTP2GO API request structure
type SMTP2GORequest struct {
	APIKey   string   `json:"api_key"`
	To       []string `json:"to"`
	Sender   string   `json:"sender"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body"`
	HtmlBody string   `json:"html_body"`
}

// SMTP2GO API response structure
type SMTP2GOResponse struct {
	RequestID string `json:"request_id"`
	Data      struct {
		EmailID string `json:"email_id"`
	} `json:"data"`
}

func New(apiKey, sender string) Mailer {
	return Mailer{
		apiKey:   apiKey,
		sender:   sender,
		endpoint: DefaultEndpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelay: 500 * time.Millisecond,
	}
}

// WithEndpoint returns a copy posting to a different API URL
func (m Mailer) WithEndpoint(endpoint string) Mailer {
	m.endpoint = endpoint
	return m
}

// Render executes the subject, plain and HTML blocks of a template
func Render(templateFile string, data any) (subject, plain, html string, err error) {
	tmpl, err := template.New("email").ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return "", "", "", err
	}

	var buf [3]bytes.Buffer
	for i, name := range []string{"subject", "plainBody", "htmlBody"} {
		if err := tmpl.ExecuteTemplate(&buf[i], name, data); err != nil {
			return "", "", "", fmt.Errorf("failed to render %s: %w", name, err)
		}
	}
	return buf[0].String(), buf[1].String(), buf[2].String(), nil
}

func (m Mailer) Send(ctx context.Context, recipient, templateFile string, data any) error {
	subject, plainBody, htmlBody, err := Render(templateFile, data)
	if err != nil {
		return err
	}

	request := SMTP2GORequest{
		APIKey:   m.apiKey,
		To:       []string{recipient},
		Sender:   m.sender,
		Subject:  subject,
		TextBody: plainBody,
		HtmlBody: htmlBody,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	for i := 1; i <= sendAttempts; i++ {
		err = m.sendViaAPI(ctx, jsonData)
		if err == nil {
			return nil
		}
		if i == sendAttempts {
			break
		}

		select {
		case <-time.After(m.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("failed to send email after %d attempts: %w", sendAttempts, err)
}

func (m Mailer) sendViaAPI(ctx context.Context, jsonData []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status: %d", resp.StatusCode)
	}

	var response SMTP2GOResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
