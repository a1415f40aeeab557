package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/normalize"
	"github.com/sells-group/jobleads-cli/internal/resilience"
	"github.com/sells-group/jobleads-cli/pkg/google"
)

// PlacesPhoneLookup finds phone numbers with Places Text Search.
type PlacesPhoneLookup struct {
	client google.Client
	retry  resilience.RetryConfig
}

// NewPlacesPhoneLookup returns a PhoneLookup backed by client. Rate limited
// and 5xx responses are retried with exponential backoff.
func NewPlacesPhoneLookup(client google.Client) *PlacesPhoneLookup {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = placesRetryable
	retry.OnRetry = resilience.RetryLogger("enrich", "places_search")
	return &PlacesPhoneLookup{client: client, retry: retry}
}

func placesRetryable(err error) bool {
	var se *google.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return resilience.IsTransient(err)
}

// LookupPhone searches "<company> <prefecture+city>" and returns the phone
// of the first result whose name matches the company.
func (p *PlacesPhoneLookup) LookupPhone(ctx context.Context, company, address string) (string, error) {
	query := strings.TrimSpace(company + " " + normalize.Area(address))
	req := google.TextSearchRequest{
		TextQuery:    query,
		LanguageCode: "ja",
		RegionCode:   "JP",
		PageSize:     5,
	}
	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*google.TextSearchResponse, error) {
		return p.client.TextSearch(ctx, req)
	})
	if err != nil {
		return "", eris.Wrapf(err, "enrich: places search %q", query)
	}
	for _, place := range resp.Places {
		if !normalize.SameCompany(company, place.DisplayName.Text) {
			continue
		}
		if phone := normalize.Phone(place.NationalPhoneNumber); phone != "" {
			return phone, nil
		}
	}
	return "", nil
}
