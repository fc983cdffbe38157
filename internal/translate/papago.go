package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const papagoURL = "https://openapi.naver.com/v1/papago/n2mt"

// papagoLangMap maps service language codes to Papago target codes.
var papagoLangMap = map[string]string{
	"en": "en",
	"ja": "ja",
	"zh": "zh-CN",
	"vi": "vi",
	"id": "id",
	"th": "th",
	"de": "de",
	"it": "it",
	"fr": "fr",
}

// Papago calls the Naver Papago NMT REST API.
type Papago struct {
	baseURL string
	client  *http.Client
	headers http.Header
}

// NewPapago creates a Papago back-end with prebuilt credential headers.
func NewPapago(clientID, clientSecret string) *Papago {
	headers := http.Header{}
	headers.Set("X-Naver-Client-Id", clientID)
	headers.Set("X-Naver-Client-Secret", clientSecret)
	headers.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return &Papago{
		baseURL: papagoURL,
		client:  newHTTPClient(),
		headers: headers,
	}
}

// Name implements Translator.
func (p *Papago) Name() string { return "papago" }

type papagoResponse struct {
	Message struct {
		Result struct {
			TranslatedText string `json:"translatedText"`
		} `json:"result"`
	} `json:"message"`
}

// Translate implements Translator.
func (p *Papago) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}
	target, ok := papagoLangMap[targetLang]
	if !ok {
		return "", nil
	}

	form := url.Values{}
	form.Set("source", "ko")
	form.Set("target", target)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header = p.headers.Clone()

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("papago request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("papago status %d: %s", resp.StatusCode, payload)
	}

	var parsed papagoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return parsed.Message.Result.TranslatedText, nil
}
