// Package lambdaapi adapts the pipeline to API Gateway proxy events.
package lambdaapi

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jo-hoe/ytscribe/internal/pipeline"
)

// Handler is the pipeline entry point the adapter forwards to.
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request) pipeline.Response
}

// Adapter converts proxy events to pipeline requests and back.
type Adapter struct {
	log     *slog.Logger
	handler Handler
}

func New(log *slog.Logger, h Handler) *Adapter {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Adapter{log: log, handler: h}
}

// Handle is the function passed to lambda.Start.
func (a *Adapter) Handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := ToRequest(ev)
	if err != nil {
		a.log.Warn("decode event body", "request_id", ev.RequestContext.RequestID, "err", err)
		return ToResponse(pipeline.FailureResponse(pipeline.InvalidJSON)), nil
	}
	return ToResponse(a.handler.Handle(ctx, req)), nil
}

// ToRequest builds a pipeline request from a proxy event. Base64 bodies are decoded.
func ToRequest(ev events.APIGatewayProxyRequest) (pipeline.Request, error) {
	headers := make(http.Header, len(ev.Headers)+len(ev.MultiValueHeaders))
	for k, vs := range ev.MultiValueHeaders {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	for k, v := range ev.Headers {
		if headers.Get(k) == "" {
			headers.Add(k, v)
		}
	}

	body := ev.Body
	if ev.IsBase64Encoded && body != "" {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return pipeline.Request{}, err
		}
		body = string(raw)
	}

	return pipeline.Request{
		ID:      ev.RequestContext.RequestID,
		Method:  ev.HTTPMethod,
		Path:    ev.Path,
		Headers: headers,
		Body:    body,
	}, nil
}

// ToResponse copies the envelope into the proxy response shape.
func ToResponse(resp pipeline.Response) events.APIGatewayProxyResponse {
	headers := make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		headers[k] = v
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      resp.StatusCode,
		Headers:         headers,
		Body:            resp.Body,
		IsBase64Encoded: resp.IsBase64Encoded,
	}
}
