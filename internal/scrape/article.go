package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"subscription-cost/pkg/platform"
)

// Article is the price article's table fragment and publication date.
type Article struct {
	Fragment          string
	LastPublishedDate *string
}

// ArticleClient loads articles through the help center's apex endpoint.
type ArticleClient struct {
	baseURL string
	http    *platform.HTTPClient
}

// NewArticleClient creates a client against baseURL.
func NewArticleClient(baseURL string, h *platform.HTTPClient) *ArticleClient {
	return &ArticleClient{baseURL: strings.TrimRight(baseURL, "/"), http: h}
}

type articleRequest struct {
	Namespace      string        `json:"namespace"`
	Classname      string        `json:"classname"`
	Method         string        `json:"method"`
	IsContinuation bool          `json:"isContinuation"`
	Params         articleParams `json:"params"`
	Cacheable      bool          `json:"cacheable"`
}

type articleParams struct {
	ArticleID    string `json:"articleId"`
	Brand        string `json:"brand"`
	Country      string `json:"country"`
	SelectedMeta string `json:"selectedMeta"`
	IsPreview    bool   `json:"isPreview"`
}

// Load fetches the article for a country under the given locale.
func (c *ArticleClient) Load(ctx context.Context, recordID, masterLabel, country, locale string) (*Article, error) {
	body, err := json.Marshal(articleRequest{
		Classname: articleClass,
		Method:    "loadArticle",
		Params: articleParams{
			ArticleID:    recordID,
			Brand:        brand,
			Country:      country,
			SelectedMeta: masterLabel,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.PostJSON(ctx, fmt.Sprintf("%s/%s/webruntime/api/apex/execute", c.baseURL, locale), body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load article: %w", err)
	}

	var envelope struct {
		ReturnValue *struct {
			Details           *string `json:"HowTo_Details__c"`
			LastPublishedDate *string `json:"LastPublishedDate"`
		} `json:"returnValue"`
	}
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode article: %w", err)
	}
	if envelope.ReturnValue == nil || envelope.ReturnValue.Details == nil {
		return nil, fmt.Errorf("article for %s has no details", country)
	}
	return &Article{
		Fragment:          *envelope.ReturnValue.Details,
		LastPublishedDate: envelope.ReturnValue.LastPublishedDate,
	}, nil
}
