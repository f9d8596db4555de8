package text

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavachapp/kavach/internal/logging"
	"github.com/kavachapp/kavach/internal/respond"
	"github.com/kavachapp/kavach/internal/risk"
	"github.com/kavachapp/kavach/internal/threats"
)

type captureAssessor struct {
	triggers chan *threats.Event
}

func (a *captureAssessor) Assess(_ context.Context, trigger *threats.Event) (*risk.Assessment, error) {
	a.triggers <- trigger
	return &risk.Assessment{}, nil
}

func setupHandler(t *testing.T) (*gin.Engine, *threats.MemoryStore, *respond.MemoryEvidenceStore, *captureAssessor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := threats.NewMemoryStore()
	es := respond.NewMemoryEvidenceStore()
	assessor := &captureAssessor{triggers: make(chan *threats.Event, 1)}
	h := NewHandler(ts, es, assessor, 0.6, logging.New("error", "text"))

	r := gin.New()
	h.RegisterRoutes(r.Group("/v1"))
	return r, ts, es, assessor
}

func postSignal(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/signals/text", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestIngestRecordsSignal(t *testing.T) {
	r, ts, _, _ := setupHandler(t)

	w := postSignal(t, r, `{
		"user_id": "user-txt",
		"text": "see you at the cafe",
		"timestamp": 1741647600
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.ThreatScore)
	assert.True(t, resp.AnalysisComplete)
	assert.False(t, resp.AssessmentTriggered)

	events, err := ts.RecentForUser(context.Background(), "user-txt", time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, threats.ModalityText, events[0].Modality)
	assert.NotContains(t, events[0].Details, "cafe", "raw text must not enter the signal log")
}

func TestIngestTriggersAssessment(t *testing.T) {
	r, _, _, assessor := setupHandler(t)

	w := postSignal(t, r, `{
		"user_id": "user-trig",
		"text": "you better come back now or else",
		"message_type": "sms",
		"timestamp": 1741647600
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 0.8, resp.ThreatScore, 1e-9)
	assert.True(t, resp.AssessmentTriggered)

	select {
	case trigger := <-assessor.triggers:
		assert.Equal(t, "user-trig", trigger.UserID)
		assert.Equal(t, threats.ModalityText, trigger.Modality)
		assert.InDelta(t, 0.8, trigger.Score, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("assessment was not triggered")
	}
}

func TestIngestStoresHighScoreEvidence(t *testing.T) {
	r, _, es, _ := setupHandler(t)

	w := postSignal(t, r, `{
		"user_id": "user-evd",
		"text": "you better come back now or else",
		"timestamp": 1741647600
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	records, err := es.ListByUser(context.Background(), "user-evd", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "message_text", records[0].Kind)
	assert.Contains(t, records[0].Content, "come back now")
}

func TestIngestLowScoreLeavesNoEvidence(t *testing.T) {
	r, _, es, assessor := setupHandler(t)

	w := postSignal(t, r, `{
		"user_id": "user-low",
		"text": "where are you",
		"timestamp": 1741647600
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 0.3, resp.ThreatScore, 1e-9)
	assert.False(t, resp.AssessmentTriggered)

	records, err := es.ListByUser(context.Background(), "user-low", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	select {
	case <-assessor.triggers:
		t.Fatal("assessment should not run below the trigger threshold")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIngestValidation(t *testing.T) {
	r, ts, _, _ := setupHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing user", `{"text":"hello","timestamp":1741647600}`},
		{"missing text", `{"user_id":"user-v","timestamp":1741647600}`},
		{"missing timestamp", `{"user_id":"user-v","text":"hello"}`},
		{"bad message type", `{"user_id":"user-v","text":"hello","message_type":"fax","timestamp":1741647600}`},
		{"bad latitude", `{"user_id":"user-v","text":"hello","timestamp":1741647600,"location":{"latitude":95,"longitude":0}}`},
		{"not json", `{{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postSignal(t, r, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	n, err := ts.CountForUser(context.Background(), "user-v")
	require.NoError(t, err)
	assert.Zero(t, n)
}
