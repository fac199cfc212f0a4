// Package telephony originates outbound calls and resolves SIP participants
// for voice sessions.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Dialer originates an outbound call that bridges the callee into a media
// room. It returns the provider's request id for the call.
type Dialer interface {
	Dial(ctx context.Context, toNumber, roomName string) (string, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, toNumber, roomName string) (string, error)

func (f DialerFunc) Dial(ctx context.Context, toNumber, roomName string) (string, error) {
	return f(ctx, toNumber, roomName)
}

// PlivoDialer places calls through the Plivo REST API.
type PlivoDialer struct {
	client        *http.Client
	apiBase       string
	authID        string
	authToken     string
	fromNumber    string
	answerBaseURL string
}

func NewPlivoDialer(authID, authToken, fromNumber, answerBaseURL string) *PlivoDialer {
	return newPlivoDialer(authID, authToken, fromNumber, answerBaseURL, "https://api.plivo.com", nil)
}

func newPlivoDialer(authID, authToken, fromNumber, answerBaseURL, apiBase string, client *http.Client) *PlivoDialer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PlivoDialer{
		client:        client,
		apiBase:       strings.TrimRight(apiBase, "/"),
		authID:        authID,
		authToken:     authToken,
		fromNumber:    fromNumber,
		answerBaseURL: strings.TrimRight(answerBaseURL, "/"),
	}
}

type plivoCallRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	AnswerURL    string `json:"answer_url"`
	AnswerMethod string `json:"answer_method"`
	HangupURL    string `json:"hangup_url"`
	HangupMethod string `json:"hangup_method"`
	TimeLimit    int    `json:"time_limit"`
	Timeout      int    `json:"timeout"`
}

type plivoCallResponse struct {
	RequestUUID string `json:"request_uuid"`
	Message     string `json:"message"`
}

func (d *PlivoDialer) Dial(ctx context.Context, toNumber, roomName string) (string, error) {
	toNumber = strings.TrimSpace(toNumber)
	if !strings.HasPrefix(toNumber, "+") {
		return "", fmt.Errorf("phone number %q must include a country code", toNumber)
	}

	answerURL := fmt.Sprintf("%s/plivo-app/plivo.xml?room=%s", d.answerBaseURL, url.QueryEscape(roomName))
	body, err := json.Marshal(plivoCallRequest{
		From:         d.fromNumber,
		To:           toNumber,
		AnswerURL:    answerURL,
		AnswerMethod: http.MethodGet,
		HangupURL:    d.answerBaseURL + "/plivo-app/hangup",
		HangupMethod: http.MethodPost,
		TimeLimit:    3600,
		Timeout:      30,
	})
	if err != nil {
		return "", fmt.Errorf("encode call request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/Account/%s/Call/", d.apiBase, d.authID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(d.authID, d.authToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", toNumber, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("dial %s: status %d: %s", toNumber, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded plivoCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}
	if decoded.RequestUUID == "" {
		return "", fmt.Errorf("dial %s: response missing request_uuid", toNumber)
	}
	return decoded.RequestUUID, nil
}
