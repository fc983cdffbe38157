// Package translate provides the translation back-ends, the credential-gated
// engine registry and the per-utterance language fan-out.
package translate

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Translator is a single translation back-end. Source language is always
// Korean; targetLang is a service language code ("en", "ja", ...).
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// httpTimeout bounds every back-end call; the core imposes no further
// deadline.
const httpTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// Registry holds the back-ends whose credentials were present at startup.
type Registry struct {
	translators map[string]Translator
}

// NewRegistry builds a registry from explicit translators, for tests.
func NewRegistry(translators ...Translator) *Registry {
	r := &Registry{translators: make(map[string]Translator)}
	for _, tr := range translators {
		r.translators[tr.Name()] = tr
	}
	return r
}

// NewRegistryFromEnv probes the environment for each back-end's credentials.
// A missing credential disables that back-end with a startup warning; it is
// never a runtime failure.
func NewRegistryFromEnv() *Registry {
	r := &Registry{translators: make(map[string]Translator)}

	if key := os.Getenv("DEEPL_API_KEY"); key != "" {
		r.translators["deepl"] = NewDeepL(key)
	} else {
		logrus.Warn("DEEPL_API_KEY not set, deepl translation disabled")
	}

	clientID := os.Getenv("NAVER_CLIENT_ID")
	clientSecret := os.Getenv("NAVER_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		r.translators["papago"] = NewPapago(clientID, clientSecret)
	} else {
		logrus.Warn("NAVER_CLIENT_ID/NAVER_CLIENT_SECRET not set, papago translation disabled")
	}

	if key := os.Getenv("GOOGLE_TRANSLATE_API_KEY"); key != "" {
		r.translators["google"] = NewGoogle(key)
	} else {
		logrus.Warn("GOOGLE_TRANSLATE_API_KEY not set, google translation disabled")
	}

	logrus.WithField("engines", r.Names()).Info("Translation registry built")
	return r
}

// Get resolves a back-end by name.
func (r *Registry) Get(name string) (Translator, bool) {
	tr, ok := r.translators[name]
	return tr, ok
}

// Names lists the available back-ends, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.translators))
	for name := range r.translators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Result is one completed translation from a fan-out.
type Result struct {
	Lang string
	Text string
}

// FanOut translates text into every target language concurrently, invoking
// deliver as each completes. A back-end error yields a synthetic failure
// marker instead of omitting the result. FanOut returns when all languages
// have been delivered or ctx is cancelled.
func FanOut(ctx context.Context, tr Translator, text string, langs []string, deliver func(Result)) {
	var wg sync.WaitGroup
	for _, lang := range langs {
		wg.Add(1)
		go func(lang string) {
			defer wg.Done()
			translated, err := tr.Translate(ctx, text, lang)
			if err != nil {
				if ctx.Err() != nil {
					// Pipeline torn down mid-call; discard the result.
					return
				}
				logrus.WithError(err).WithFields(logrus.Fields{
					"engine": tr.Name(),
					"lang":   lang,
				}).Error("Translation failed")
				translated = fmt.Sprintf("[%s 번역 실패]", lang)
			}
			deliver(Result{Lang: lang, Text: translated})
		}(lang)
	}
	wg.Wait()
}
