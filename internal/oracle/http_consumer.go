package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"vrflottery/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const callerTokenTTL = time.Minute

// SignCallerToken issues the bearer token that proves a callback comes from
// caller. The lottery checks the subject against its configured oracle.
func SignCallerToken(secret []byte, caller models.Address, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	claims := jwt.RegisteredClaims{
		Subject:   string(caller),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(callerTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// HTTPConsumer delivers fulfillments to a lottery served over HTTP.
type HTTPConsumer struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

func NewHTTPConsumer(url, secret string, client *http.Client) *HTTPConsumer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPConsumer{url: url, secret: []byte(secret), client: client, now: time.Now}
}

// FulfillRandomWords implements Consumer.
func (h *HTTPConsumer) FulfillRandomWords(ctx context.Context, caller models.Address, requestID models.RequestID, randomWords []*big.Int) error {
	token, err := SignCallerToken(h.secret, caller, h.now())
	if err != nil {
		return fmt.Errorf("sign caller token: %w", err)
	}

	payload := models.FulfillmentPayload{RequestID: requestID, RandomWords: make([]string, len(randomWords))}
	for i, w := range randomWords {
		payload.RandomWords[i] = w.String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode fulfillment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post fulfillment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("fulfillment rejected with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
