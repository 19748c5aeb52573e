// internal/calendar/calendar-provider/provider.go
package calendarprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "office-affinity/internal/common/errors"
	apphttp "office-affinity/internal/common/http"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
)

// HTTPProvider talks to a JSON calendar API authenticated with the OAuth2
// client-credentials grant. Events are created with an Idempotency-Key
// header, so a repeated create for the same key updates the same event.
type HTTPProvider struct {
	config *Config
	oauth  *clientcredentials.Config
	base   *http.Client
	logger logger.Logger

	mu     sync.Mutex
	client *apphttp.Client
	token  *oauth2.Token
}

// New builds a provider. It does not contact the provider until
// Authenticate.
func New(config *Config, log logger.Logger) *HTTPProvider {
	if config == nil {
		config = LoadConfig()
	}
	return &HTTPProvider{
		config: config,
		oauth: &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
			Scopes:       config.Scopes,
		},
		base:   &http.Client{Timeout: config.Timeout},
		logger: logger.ForComponent(log, "calendar-provider"),
	}
}

func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Authenticate fetches a token. Every failure is reported as AUTH_ERROR.
func (p *HTTPProvider) Authenticate(ctx context.Context) error {
	if !p.config.HasCredentials() {
		return apperrors.NewAuthError(p.config.Name, errors.New("provider credentials are not configured"))
	}

	token, err := p.oauth.Token(context.WithValue(ctx, oauth2.HTTPClient, p.base))
	if err != nil {
		return apperrors.NewAuthError(p.config.Name, err)
	}

	// refreshes outlive the caller's context
	tctx := context.WithValue(context.Background(), oauth2.HTTPClient, p.base)
	source := oauth2.ReuseTokenSource(token, p.oauth.TokenSource(tctx))

	p.mu.Lock()
	p.token = token
	p.client = apphttp.Wrap(oauth2.NewClient(tctx, source), p.config.Timeout)
	p.mu.Unlock()

	p.logger.Info("calendar provider authenticated", map[string]interface{}{
		"provider": p.config.Name,
		"expiry":   token.Expiry,
	})
	return nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventRequest struct {
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	Start       eventTime         `json:"start"`
	End         eventTime         `json:"end"`
	Attendees   []string          `json:"attendees"`
	Properties  map[string]string `json:"extendedProperties"`
}

type eventResponse struct {
	ID string `json:"id"`
}

func toRequest(ev models.CalendarEvent) eventRequest {
	zone := ev.Start.Location().String()
	return eventRequest{
		Summary:     ev.Title,
		Description: ev.Description,
		Start:       eventTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: zone},
		End:         eventTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: zone},
		Attendees:   ev.Attendees,
		Properties: map[string]string{
			"userId":   ev.UserID,
			"date":     ev.Day.String(),
			"status":   string(ev.Status),
			"groups":   strings.Join(ev.Groups, ","),
			"revision": fmt.Sprintf("%d", ev.Revision),
		},
	}
}

// CreateEvent creates or updates the event for ev.IdempotencyKey and returns
// the provider's event id.
func (p *HTTPProvider) CreateEvent(ctx context.Context, ev models.CalendarEvent) (string, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return "", apperrors.NewAuthError(p.config.Name, errors.New("not authenticated"))
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", strings.TrimRight(p.config.BaseURL, "/"), url.PathEscape(p.config.CalendarID))
	headers := map[string]string{"Idempotency-Key": ev.IdempotencyKey}

	var out eventResponse
	if err := client.DoJSON(ctx, http.MethodPost, endpoint, headers, toRequest(ev), &out); err != nil {
		return "", p.classify(err)
	}
	if out.ID == "" {
		return "", apperrors.NewProviderError(p.config.Name, false, errors.New("response carried no event id"))
	}

	p.logger.Debug("calendar event stored", map[string]interface{}{
		"key":     ev.IdempotencyKey,
		"eventId": out.ID,
	})
	return out.ID, nil
}

// classify maps transport and HTTP failures onto the error taxonomy:
// 401/403 and token failures are AUTH_ERROR, 429/5xx and network errors are
// retryable, any other status is not.
func (p *HTTPProvider) classify(err error) error {
	var status *apphttp.StatusError
	if errors.As(err, &status) {
		switch {
		case status.StatusCode == http.StatusUnauthorized || status.StatusCode == http.StatusForbidden:
			return apperrors.NewAuthError(p.config.Name, err)
		case status.StatusCode == http.StatusTooManyRequests || status.StatusCode >= 500:
			return apperrors.NewProviderError(p.config.Name, true, err)
		default:
			return apperrors.NewProviderError(p.config.Name, false, err)
		}
	}

	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		return apperrors.NewAuthError(p.config.Name, err)
	}
	return apperrors.NewProviderError(p.config.Name, true, err)
}

// SignOut revokes the token when a revocation endpoint is configured and
// forgets it either way.
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.token = nil
	p.client = nil
	p.mu.Unlock()

	if token == nil || p.config.RevokeURL == "" {
		return nil
	}

	form := url.Values{"token": {token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.NewProviderError(p.config.Name, false, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.config.ClientID, p.config.ClientSecret)

	resp, err := apphttp.Wrap(p.base, 0).Do(req)
	if err != nil {
		return apperrors.NewProviderError(p.config.Name, true, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperrors.NewProviderError(p.config.Name, false, &apphttp.StatusError{StatusCode: resp.StatusCode})
	}
	p.logger.Info("calendar provider signed out", map[string]interface{}{"provider": p.config.Name})
	return nil
}
