package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const googleURL = "https://translation.googleapis.com/language/translate/v2"

// googleLangMap maps service language codes to Google Translate codes.
var googleLangMap = map[string]string{
	"en": "en",
	"ja": "ja",
	"zh": "zh-CN",
	"vi": "vi",
	"id": "id",
	"tr": "tr",
	"de": "de",
	"it": "it",
	"pt": "pt",
	"fr": "fr",
}

// Google calls the Cloud Translation v2 REST API with an API key.
type Google struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGoogle creates a Google Translate back-end.
func NewGoogle(apiKey string) *Google {
	return &Google{
		apiKey:  apiKey,
		baseURL: googleURL,
		client:  newHTTPClient(),
	}
}

// Name implements Translator.
func (g *Google) Name() string { return "google" }

type googleRequest struct {
	Q      []string `json:"q"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate implements Translator.
func (g *Google) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}
	target, ok := googleLangMap[targetLang]
	if !ok {
		return "", nil
	}

	body, err := json.Marshal(googleRequest{
		Q:      []string{text},
		Source: "ko",
		Target: target,
		Format: "text",
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"?key="+g.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("google request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("google status %d: %s", resp.StatusCode, payload)
	}

	var parsed googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Data.Translations) == 0 {
		return "", fmt.Errorf("google returned no translations")
	}
	return parsed.Data.Translations[0].TranslatedText, nil
}
