package tencent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeTMT(t *testing.T, lang string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("X-TC-Action") {
		case "LanguageDetect":
			w.Write([]byte(`{"Response":{"Lang":"` + lang + `","RequestId":"r1"}}`))
		case "TextTranslateBatch":
			var req struct {
				SourceTextList []string
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			out := make([]string, len(req.SourceTextList))
			for i, s := range req.SourceTextList {
				out[i] = strings.ToUpper(s)
			}
			body, _ := json.Marshal(map[string]interface{}{
				"Response": map[string]interface{}{
					"Source":         lang,
					"Target":         "zh",
					"TargetTextList": out,
					"RequestId":      "r2",
				},
			})
			w.Write(body)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranslateLines(t *testing.T) {
	srv := newFakeTMT(t, "en")
	host := strings.TrimPrefix(srv.URL, "http://")

	client, err := NewClient("id", "key", "", "", WithEndpoint("HTTP", host))
	require.NoError(t, err)

	out, err := client.TranslateLines(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, []string{"HELLO", "WORLD"}, out)
}

func TestTranslateLinesSameLanguage(t *testing.T) {
	srv := newFakeTMT(t, "zh")
	host := strings.TrimPrefix(srv.URL, "http://")

	client, err := NewClient("id", "key", "", "zh", WithEndpoint("HTTP", host))
	require.NoError(t, err)

	lines := []string{"你好"}
	out, err := client.TranslateLines(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, lines, out)
	assert.Equal(t, "tencent", client.Name())
}
