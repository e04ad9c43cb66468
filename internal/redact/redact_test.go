package redact

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticSource []string

func (s staticSource) Values() []string { return s }

func TestHandler_MasksMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil), staticSource{"hunter2"}))

	logger.With("static", "pw=hunter2").Info("login with hunter2",
		"password", "hunter2",
		"err", errors.New("auth failed for hunter2"),
		"args", []string{"-Dpassword=hunter2"},
		slog.Group("env", "TOKEN", "hunter2"),
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "login with ***")
	assert.Contains(t, out, "env.TOKEN=***")
}

func TestHandler_NoSecretsPassThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil), staticSource{}))
	logger.Info("plain", "count", 3)
	assert.Contains(t, buf.String(), `"count":3`)
}

func TestString(t *testing.T) {
	assert.Equal(t, "a *** b ***", String("a secretlong b secret", []string{"secretlong", "secret"}))
	assert.Equal(t, "unchanged", String("unchanged", []string{""}))
}

func TestPartialSuffix(t *testing.T) {
	values := []string{"hunter2", "s3cr3t"}
	assert.Equal(t, 0, PartialSuffix([]byte("plain text"), values))
	assert.Equal(t, 3, PartialSuffix([]byte("user=hun"), values))
	assert.Equal(t, 5, PartialSuffix([]byte("token s3cr3"), values))
	assert.Equal(t, 0, PartialSuffix([]byte("pw hunter2"), values), "a whole secret is masked in place")
	assert.Equal(t, 1, PartialSuffix([]byte("h"), values))
}

func TestValues(t *testing.T) {
	h := NewHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), staticSource{"hunter2"})
	assert.Equal(t, []string{"hunter2"}, Values(h))
	assert.Equal(t, []string{"hunter2"}, Values(h.WithAttrs([]slog.Attr{slog.String("k", "v")})))
	assert.Nil(t, Values(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}
