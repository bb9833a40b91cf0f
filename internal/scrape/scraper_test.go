package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const localization = `{"returnValue":{
	"US":{"lanInfo":[{"localeCode":"en-us","masterLabel":"English (US)"}]},
	"DE":{"lanInfo":[{"localeCode":"de-de","masterLabel":"Deutsch"},{"localeCode":"en-gb","masterLabel":"English (DE)"}]},
	"FR":{"lanInfo":[{"localeCode":"fr-fr","masterLabel":"Français"}]},
	"ZZ":{"lanInfo":[]}
}}`

const fragment = `<table><tr><th>Plan</th><th>Features</th><th>Price</th></tr>` +
	`<tr><td>Disney+ Premium</td><td>4K</td><td>$13.99/month<br>$139.99/year</td></tr></table>`

type fakeRecords map[string]string

func (f fakeRecords) RecordID(_ context.Context, locale string) (string, error) {
	if id, ok := f[locale]; ok {
		return id, nil
	}
	return "", errors.New("no record")
}

func helpCenter(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/de/webruntime/api/apex/execute":
			if r.URL.Query().Get("method") != "getCountryLanguageLocalization" {
				http.Error(w, "bad method", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(localization))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/webruntime/api/apex/execute"):
			var req articleRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "loadArticle" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"returnValue": map[string]any{
					"HowTo_Details__c":  fragment,
					"LastPublishedDate": "2024-05-01T00:00:00.000Z",
					"country":           req.Params.Country,
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPickLocale(t *testing.T) {
	tests := []struct {
		name    string
		locales []Locale
		want    string
		ok      bool
	}{
		{"english preferred", []Locale{{LocaleCode: "de-de"}, {LocaleCode: "en-gb"}}, "en-gb", true},
		{"first when no english", []Locale{{LocaleCode: "fr-fr"}, {LocaleCode: "fr-be"}}, "fr-fr", true},
		{"bare en is not en-*", []Locale{{LocaleCode: "ja-jp"}, {LocaleCode: "en"}}, "ja-jp", true},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PickLocale(tt.locales)
			if ok != tt.ok || got.LocaleCode != tt.want {
				t.Errorf("PickLocale = %q, %v; want %q, %v", got.LocaleCode, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestExtractRecordID(t *testing.T) {
	page := `<script>var a = {"recordId":"ka0ABC123"}; var b = {"recordId":"other"};</script>`
	if id, ok := ExtractRecordID(page); !ok || id != "ka0ABC123" {
		t.Errorf("ExtractRecordID = %q, %v", id, ok)
	}
	if _, ok := ExtractRecordID("<html></html>"); ok {
		t.Error("expected no record id")
	}
}

func TestScraperRun(t *testing.T) {
	srv := helpCenter(t)
	records := fakeRecords{"en-us": "rec-us", "en-gb": "rec-de"}

	set, err := NewScraper(srv.URL, records).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := strings.Join(set.Codes(), ","); got != "US,DE" {
		t.Fatalf("countries = %s, want US,DE (FR has no record, ZZ no locale)", got)
	}
	us := set[0]
	if len(us.Plans) != 1 {
		t.Fatalf("US plans = %+v", us.Plans)
	}
	row := us.Plans[0]
	if row.Plan != "Disney+ Premium" || row.Price != "$13.99/month $139.99/year" {
		t.Errorf("row = %+v", row)
	}
	if row.LastPublishedDate == nil || *row.LastPublishedDate != "2024-05-01T00:00:00.000Z" {
		t.Errorf("last published = %v", row.LastPublishedDate)
	}
}

func TestScraperRunLocalizationDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewScraper(srv.URL, fakeRecords{}).Run(context.Background()); err == nil {
		t.Error("expected error when the country listing fails")
	}
}
