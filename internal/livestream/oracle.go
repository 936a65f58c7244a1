package livestream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/social-eventfabric/realtime/internal/domain"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
)

const oracleRequestTimeout = 15 * time.Second

// HTTPOracle calls the moderation oracle's request/response HTTP
// endpoint per spec.md §6: POST /run with an inlineData-wrapped segment,
// parsing a fenced-JSON verdict out of the response text part.
type HTTPOracle struct {
	URL     string
	AppName string
	Client  *http.Client
}

func NewHTTPOracle(url string) *HTTPOracle {
	return &HTTPOracle{URL: url, AppName: "livestream-moderation", Client: &http.Client{Timeout: oracleRequestTimeout}}
}

type oracleRequest struct {
	UserID     string         `json:"userId"`
	NewMessage oracleMessage  `json:"newMessage"`
	AppName    string         `json:"appName"`
	SessionID  string         `json:"sessionId"`
}

type oracleMessage struct {
	Role  string       `json:"role"`
	Parts []oraclePart `json:"parts"`
}

type oraclePart struct {
	InlineData *oracleInlineData `json:"inlineData,omitempty"`
}

type oracleInlineData struct {
	Data        string `json:"data"`
	MimeType    string `json:"mimeType"`
	DisplayName string `json:"displayName"`
}

type oracleResponse struct {
	Parts []oracleResponsePart `json:"parts"`
}

type oracleResponsePart struct {
	Text string `json:"text"`
}

type verdictBody struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

// Classify POSTs one base64-encoded segment to the oracle and decodes its
// verdict. Any malformed response is treated as a fatal classification
// error rather than guessed at, so the monitor's error path (and its
// offline/error threshold) handles it uniformly with a network failure.
func (o *HTTPOracle) Classify(ctx context.Context, userID string, segment []byte) (domain.ModerationOutcome, error) {
	reqBody := oracleRequest{
		UserID:    userID,
		AppName:   o.AppName,
		SessionID: uuid.New().String(),
		NewMessage: oracleMessage{
			Role: "user",
			Parts: []oraclePart{{
				InlineData: &oracleInlineData{
					Data:        base64.StdEncoding.EncodeToString(segment),
					MimeType:    "video/MP2T",
					DisplayName: "segment.ts",
				},
			}},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return domain.ModerationOutcome{}, apperrors.Internal("failed to encode moderation request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.ModerationOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return domain.ModerationOutcome{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ModerationOutcome{}, fmt.Errorf("moderation oracle returned status %d", resp.StatusCode)
	}

	var oResp oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return domain.ModerationOutcome{}, apperrors.InvalidArgument("malformed moderation oracle response", err)
	}
	if len(oResp.Parts) == 0 {
		return domain.ModerationOutcome{}, apperrors.InvalidArgument("moderation oracle response had no parts", nil)
	}

	var v verdictBody
	if err := json.Unmarshal([]byte(stripFences(oResp.Parts[0].Text)), &v); err != nil {
		return domain.ModerationOutcome{}, apperrors.InvalidArgument("failed to parse moderation verdict json", err)
	}

	return domain.ModerationOutcome{Verdict: domain.ModerationVerdict(v.Result), Reason: v.Message}, nil
}

// stripFences removes a wrapping markdown code fence (```json ... ``` or
// ``` ... ```) from the oracle's text part, if present.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
