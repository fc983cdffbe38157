package translate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTranslator returns canned results per language for fan-out tests.
type fakeTranslator struct {
	results map[string]string
	errs    map[string]error
}

func (f *fakeTranslator) Name() string { return "fake" }

func (f *fakeTranslator) Translate(_ context.Context, text, lang string) (string, error) {
	if err, ok := f.errs[lang]; ok {
		return "", err
	}
	return f.results[lang], nil
}

// TestRegistryGet verifies lookup and the sorted name list.
func TestRegistryGet(t *testing.T) {
	r := NewRegistry(NewDeepL("key:fx"), NewPapago("id", "secret"))

	_, ok := r.Get("deepl")
	assert.True(t, ok)
	_, ok = r.Get("google")
	assert.False(t, ok)
	assert.Equal(t, []string{"deepl", "papago"}, r.Names())
}

// TestFanOutDeliversAllLanguages verifies each language produces exactly one
// result and failures become the synthetic marker.
func TestFanOutDeliversAllLanguages(t *testing.T) {
	tr := &fakeTranslator{
		results: map[string]string{"en": "hello", "ja": "こんにちは"},
		errs:    map[string]error{"fr": errors.New("quota exceeded")},
	}

	var mu sync.Mutex
	got := map[string]string{}
	FanOut(context.Background(), tr, "안녕하세요", []string{"en", "ja", "fr"}, func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		got[res.Lang] = res.Text
	})

	assert.Equal(t, map[string]string{
		"en": "hello",
		"ja": "こんにちは",
		"fr": "[fr 번역 실패]",
	}, got)
}

// TestFanOutCancelledDiscards verifies results from a torn-down pipeline are
// dropped rather than delivered.
func TestFanOutCancelledDiscards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &fakeTranslator{errs: map[string]error{"en": context.Canceled}}
	delivered := 0
	FanOut(ctx, tr, "안녕하세요", []string{"en"}, func(Result) { delivered++ })

	assert.Zero(t, delivered)
}

// TestDeepLTranslate verifies request shape and response parsing against a
// stub server.
func TestDeepLTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DeepL-Auth-Key test-key:fx", r.Header.Get("Authorization"))
		w.Write([]byte(`{"translations":[{"text":"Good morning"}]}`))
	}))
	defer srv.Close()

	d := NewDeepL("test-key:fx")
	d.baseURL = srv.URL

	text, err := d.Translate(context.Background(), "좋은 아침입니다", "en")
	require.NoError(t, err)
	assert.Equal(t, "Good morning", text)
}

// TestDeepLUnsupportedLanguage verifies unmapped languages yield an empty
// translation without an error.
func TestDeepLUnsupportedLanguage(t *testing.T) {
	d := NewDeepL("test-key")

	text, err := d.Translate(context.Background(), "안녕하세요", "xx")
	assert.NoError(t, err)
	assert.Equal(t, "", text)
}

// TestPapagoTranslate verifies credential headers and response parsing.
func TestPapagoTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "my-id", r.Header.Get("X-Naver-Client-Id"))
		assert.Equal(t, "my-secret", r.Header.Get("X-Naver-Client-Secret"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ko", r.PostForm.Get("source"))
		assert.Equal(t, "zh-CN", r.PostForm.Get("target"))
		w.Write([]byte(`{"message":{"result":{"translatedText":"你好"}}}`))
	}))
	defer srv.Close()

	p := NewPapago("my-id", "my-secret")
	p.baseURL = srv.URL

	text, err := p.Translate(context.Background(), "안녕하세요", "zh")
	require.NoError(t, err)
	assert.Equal(t, "你好", text)
}

// TestGoogleTranslateErrorStatus verifies non-200 responses surface as
// errors so the fan-out can emit the failure marker.
func TestGoogleTranslateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":403}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGoogle("bad-key")
	g.baseURL = srv.URL

	_, err := g.Translate(context.Background(), "안녕하세요", "en")
	assert.Error(t, err)
}
