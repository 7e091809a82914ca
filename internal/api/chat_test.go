package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-beta/fincall/internal/auth"
	"github.com/argus-beta/fincall/internal/core/classify"
	"github.com/argus-beta/fincall/internal/providers"
)

// fakeClassifier returns a fixed entry, or err when set.
type fakeClassifier struct {
	err         error
	message     string
	personality string
}

func (f *fakeClassifier) Classify(_ context.Context, message, personality string) (*classify.Entry, *providers.Usage, error) {
	f.message, f.personality = message, personality
	if f.err != nil {
		return nil, nil, f.err
	}
	return &classify.Entry{
		Description: message,
		Category:    "ăn uống",
		Amount:      50000,
		Type:        "gửi",
		Partner:     "Nam",
		Advice:      "Ổn đấy.",
	}, &providers.Usage{InputTokens: 8}, nil
}

func newChatServer(c Classifier) *Server {
	return NewServer(Options{Engine: &fakeEngine{}, Verifier: auth.NewVerifier(secret), Classifier: c})
}

func TestChatReturnsClassifiedEntry(t *testing.T) {
	c := &fakeClassifier{}
	s := newChatServer(c)

	rec := do(s, http.MethodPost, "/chat", bearer(t, "u1"), `{"query":"ăn trưa với Nam 50k","personality":"friendly"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(200), env["code"])
	assert.Equal(t, "Recieved response", env["message"])
	meta, ok := env["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ăn uống", meta["category"])
	assert.Equal(t, float64(50000), meta["amount"])
	assert.Equal(t, "Nam", meta["partner"])

	assert.Equal(t, "ăn trưa với Nam 50k", c.message)
	assert.Equal(t, "friendly", c.personality)
}

func TestChatRequiresQueryAndPersonality(t *testing.T) {
	s := newChatServer(&fakeClassifier{})

	for _, body := range []string{`{"query":"mua sách"}`, `{"personality":"polite"}`, `{"query":" ","personality":"polite"}`} {
		rec := do(s, http.MethodPost, "/chat", bearer(t, "u1"), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Query and personality is required", decodeEnvelope(t, rec)["message"])
	}

	rec := do(s, http.MethodPost, "/chat", "", `{"query":"x","personality":"polite"}`)
	assert.Equal(t, "Token is required", decodeEnvelope(t, rec)["message"])
}

func TestChatModelFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"model down", &classify.ModelError{Model: "fake", Err: errors.New("refused")}, "Model is unavailable"},
		{"bad reply", classify.ErrUnusableReply, "Model returned an unusable reply"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newChatServer(&fakeClassifier{err: tt.err})
			rec := do(s, http.MethodPost, "/chat", bearer(t, "u1"), `{"query":"x","personality":"polite"}`)
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			assert.Equal(t, tt.want, decodeEnvelope(t, rec)["message"])
		})
	}
}

func TestChatDisabled(t *testing.T) {
	s := newChatServer(nil)
	rec := do(s, http.MethodPost, "/chat", bearer(t, "u1"), `{"query":"x","personality":"polite"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Chat is disabled", decodeEnvelope(t, rec)["message"])
}
