// Package checkout creates one-time PIX billings on the payment gateway.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/plans"
)

const (
	defaultBaseURL      = "https://api.abacatepay.com"
	createBillingPath   = "/v1/billing/create"
	frequencyOneTime    = "ONE_TIME"
	methodPix           = "PIX"
	productNamePrefix   = "Assinatura "
	defaultTimeout      = 10 * time.Second
	maxErrorBodyBytes   = 64 << 10
	maxSuccessBodyBytes = 1 << 20
)

var (
	ErrMissingAPIKey   = errors.New("checkout: billing api key is not configured")
	ErrInvalidCustomer = errors.New("checkout: invalid customer")
	ErrGateway         = errors.New("checkout: gateway error")
)

// Config holds the gateway coordinates.
type Config struct {
	BaseURL       string
	APIKey        string
	ReturnURL     string
	CompletionURL string
	HTTPClient    *http.Client
}

// Customer is the payer as the gateway expects it.
type Customer struct {
	ID        string
	Name      string
	Email     string
	TaxID     string
	Cellphone string
}

// Request asks for a checkout session of one plan.
type Request struct {
	Plan     plans.Plan
	Customer Customer
}

// Client calls the gateway billing API.
type Client struct {
	baseURL       string
	apiKey        string
	returnURL     string
	completionURL string
	httpClient    *http.Client
}

// NewClient builds a Client. An empty API key is accepted; CreateCheckout then fails with ErrMissingAPIKey.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		returnURL:     cfg.ReturnURL,
		completionURL: cfg.CompletionURL,
		httpClient:    httpClient,
	}
}

type billingProduct struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	Quantity   int    `json:"quantity"`
}

type billingCustomer struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Cellphone string `json:"cellphone,omitempty"`
	TaxID     string `json:"taxId"`
}

type billingMetadata struct {
	PlanID string `json:"planId"`
	UserID string `json:"userId"`
}

type billingRequest struct {
	Frequency     string           `json:"frequency"`
	Methods       []string         `json:"methods"`
	Products      []billingProduct `json:"products"`
	ReturnURL     string           `json:"returnUrl"`
	CompletionURL string           `json:"completionUrl"`
	Customer      billingCustomer  `json:"customer"`
	Metadata      billingMetadata  `json:"metadata"`
}

type billingResponse struct {
	Data *struct {
		URL string `json:"url"`
	} `json:"data"`
	Error   any    `json:"error"`
	Message string `json:"message"`
}

// CreateCheckout registers a billing and returns the hosted payment URL. It is not retried.
func (client *Client) CreateCheckout(ctx context.Context, request Request) (string, error) {
	if client.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	customer := request.Customer
	if strings.TrimSpace(customer.ID) == "" || strings.TrimSpace(customer.Email) == "" || strings.TrimSpace(customer.TaxID) == "" {
		return "", fmt.Errorf("%w: id, email and tax id are required", ErrInvalidCustomer)
	}
	name := strings.TrimSpace(customer.Name)
	if name == "" {
		name = customer.Email
	}
	payload := billingRequest{
		Frequency: frequencyOneTime,
		Methods:   []string{methodPix},
		Products: []billingProduct{{
			ExternalID: request.Plan.ID,
			Name:       productNamePrefix + request.Plan.Name,
			Price:      request.Plan.PriceCents,
			Quantity:   1,
		}},
		ReturnURL:     client.returnURL,
		CompletionURL: client.completionURL,
		Customer: billingCustomer{
			ID:        customer.ID,
			Name:      name,
			Email:     customer.Email,
			Cellphone: customer.Cellphone,
			TaxID:     customer.TaxID,
		},
		Metadata: billingMetadata{PlanID: request.Plan.ID, UserID: customer.ID},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("checkout: encode: %w", err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+createBillingPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("checkout: request: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+client.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		return "", fmt.Errorf("%w: status %d: %s", ErrGateway, response.StatusCode, gatewayMessage(raw))
	}
	var decoded billingResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, maxSuccessBodyBytes)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	if decoded.Data == nil || strings.TrimSpace(decoded.Data.URL) == "" {
		return "", fmt.Errorf("%w: response carries no checkout url", ErrGateway)
	}
	return decoded.Data.URL, nil
}

func gatewayMessage(raw []byte) string {
	var decoded billingResponse
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if decoded.Message != "" {
			return decoded.Message
		}
		if text, ok := decoded.Error.(string); ok && text != "" {
			return text
		}
	}
	return strings.TrimSpace(string(raw))
}
