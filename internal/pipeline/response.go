package pipeline

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// Response is the wire envelope returned for every request.
type Response struct {
	IsBase64Encoded bool              `json:"isBase64Encoded"`
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
}

type messageBody struct {
	Message string `json:"message"`
}

type okBody struct {
	Success string `json:"success"`
}

type transcriptBody struct {
	Success    string `json:"success"`
	Transcript string `json:"transcript"`
}

const successValue = "OK"

// FailureResponse maps an early exit reason to its response.
func FailureResponse(r Reason) Response {
	headers := map[string]string{common.HeaderContentType: common.ContentTypeJSON}
	var body any = messageBody{Message: r.Message()}
	switch r {
	case HealthCheck:
		body = okBody{Success: successValue}
	case OptionsPreflight:
		// Browsers reject a preflight answer without CORS headers.
		addCORS(headers)
		body = okBody{Success: successValue}
	}
	return Response{
		StatusCode: r.Status(),
		Headers:    headers,
		Body:       mustJSON(body),
	}
}

// SuccessResponse renders the transcript carried by st.
func SuccessResponse(st *State) Response {
	headers := map[string]string{common.HeaderContentType: common.ContentTypeJSON}
	addCORS(headers)
	return Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       mustJSON(transcriptBody{Success: successValue, Transcript: st.Transcript}),
	}
}

func addCORS(h map[string]string) {
	h[common.HeaderAllowOrigin] = common.CORSAllowOrigin
	h[common.HeaderAllowMethods] = common.CORSAllowMethods
	h[common.HeaderAllowHeaders] = common.CORSAllowHeaders
}

// mustJSON encodes v without HTML escaping so transcripts stay readable.
// The body types above only hold strings, so encoding cannot fail.
func mustJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
