package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
	"github.com/Dan9191/card-payments/internal/utils"
	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	soapNamespace    = "http://www.w3.org/2003/05/soap-envelope"
	gatewayNamespace = "http://gateway.payments.example/"
	soapAction       = gatewayNamespace + "Authorize"
)

// SOAPClient authorizes charges against an XML-over-HTTP payment gateway
type SOAPClient struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewSOAPClient initializes a new gateway client. The per-call deadline comes
// from the context; timeout is an upper bound on the HTTP exchange.
func NewSOAPClient(url string, timeout time.Duration, log *logrus.Logger) *SOAPClient {
	return &SOAPClient{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// buildSOAPRequest creates the Authorize envelope. Values are escaped by etree.
func (c *SOAPClient) buildSOAPRequest(card models.CardDetails, amount decimal.Decimal) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	envelope := doc.CreateElement("soap12:Envelope")
	envelope.CreateAttr("xmlns:soap12", soapNamespace)
	body := envelope.CreateElement("soap12:Body")

	authorize := body.CreateElement("Authorize")
	authorize.CreateAttr("xmlns", gatewayNamespace)
	authorize.CreateElement("CardNumber").SetText(utils.NormalizeCardNumber(card.CardNumber))
	authorize.CreateElement("CardholderName").SetText(card.CardholderName)
	authorize.CreateElement("ExpiryDate").SetText(card.ExpiryDate)
	authorize.CreateElement("CVV").SetText(card.CVV)
	authorize.CreateElement("Amount").SetText(amount.StringFixed(2))

	return doc.WriteToBytes()
}

// sendRequest posts the SOAP request to the gateway
func (c *SOAPClient) sendRequest(ctx context.Context, soapRequest []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(soapRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// parseXMLResponse extracts the authorization result from the response envelope
func (c *SOAPClient) parseXMLResponse(rawBody []byte) (models.AuthorizationOutcome, string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return models.OutcomeDeclined, "", fmt.Errorf("failed to parse XML: %w", err)
	}

	if fault := doc.FindElement("//Fault"); fault != nil {
		reason := ""
		if text := fault.FindElement(".//Text"); text != nil {
			reason = text.Text()
		}
		return models.OutcomeDeclined, "", fmt.Errorf("gateway fault: %s", reason)
	}

	result := doc.FindElement("//AuthorizeResponse/Result")
	if result == nil {
		return models.OutcomeDeclined, "", fmt.Errorf("result element not found in XML")
	}

	authCode := ""
	if code := doc.FindElement("//AuthorizeResponse/AuthCode"); code != nil {
		authCode = code.Text()
	}

	switch strings.ToUpper(strings.TrimSpace(result.Text())) {
	case string(models.StatusApproved):
		return models.OutcomeApproved, authCode, nil
	case string(models.StatusDeclined):
		return models.OutcomeDeclined, authCode, nil
	default:
		return models.OutcomeDeclined, "", fmt.Errorf("unknown authorization result %q", result.Text())
	}
}

// Authorize sends the card and amount to the gateway. Any transport, HTTP or
// parse failure is returned as an error with a declined outcome.
func (c *SOAPClient) Authorize(ctx context.Context, card models.CardDetails, amount decimal.Decimal) (models.AuthorizationOutcome, error) {
	soapRequest, err := c.buildSOAPRequest(card, amount)
	if err != nil {
		return models.OutcomeDeclined, fmt.Errorf("failed to build request: %w", err)
	}

	body, err := c.sendRequest(ctx, soapRequest)
	if err != nil {
		return models.OutcomeDeclined, err
	}

	outcome, authCode, err := c.parseXMLResponse(body)
	if err != nil {
		return models.OutcomeDeclined, err
	}

	c.log.WithFields(logrus.Fields{
		"outcome":   outcome.String(),
		"auth_code": authCode,
		"last_four": utils.LastFour(card.CardNumber),
	}).Info("Gateway response received")
	return outcome, nil
}
