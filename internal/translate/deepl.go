package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	deeplFreeURL = "https://api-free.deepl.com/v2/translate"
	deeplProURL  = "https://api.deepl.com/v2/translate"
)

// deeplLangMap maps service language codes to DeepL target codes.
var deeplLangMap = map[string]string{
	"en": "EN-US",
	"ja": "JA",
	"zh": "ZH",
	"vi": "VI",
	"id": "ID",
	"tr": "TR",
	"de": "DE",
	"it": "IT",
	"pt": "PT-BR",
	"fr": "FR",
}

// DeepL calls the DeepL v2 REST API. Free-tier keys (":fx" suffix) are
// routed to the free endpoint.
type DeepL struct {
	apiKey  string
	baseURL string
	client  *http.Client
	headers http.Header
}

// NewDeepL creates a DeepL back-end with prebuilt request headers.
func NewDeepL(apiKey string) *DeepL {
	baseURL := deeplProURL
	if strings.HasSuffix(apiKey, ":fx") {
		baseURL = deeplFreeURL
	}
	headers := http.Header{}
	headers.Set("Authorization", "DeepL-Auth-Key "+apiKey)
	headers.Set("Content-Type", "application/json")
	return &DeepL{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  newHTTPClient(),
		headers: headers,
	}
}

// Name implements Translator.
func (d *DeepL) Name() string { return "deepl" }

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// Translate implements Translator. Unsupported target languages yield an
// empty translation without an error, matching the engine's language map.
func (d *DeepL) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}
	target, ok := deeplLangMap[targetLang]
	if !ok {
		return "", nil
	}

	body, err := json.Marshal(deeplRequest{
		Text:       []string{text},
		SourceLang: "KO",
		TargetLang: target,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header = d.headers.Clone()

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepl request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("deepl status %d: %s", resp.StatusCode, payload)
	}

	var parsed deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Translations) == 0 {
		return "", fmt.Errorf("deepl returned no translations")
	}
	return parsed.Translations[0].Text, nil
}
