// Command lambda-http serves the assessment API behind API Gateway HTTP APIs.
//
//	GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http
package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"assessment-backend/internal/bootstrap"
	"assessment-backend/internal/shared/config"
	"assessment-backend/internal/shared/telemetry"
)

// proxy is built once per container and reused across invocations.
var proxy = sync.OnceValues(func() (*ginadapter.GinLambdaV2, error) {
	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel)
	// Exports run in the SQS-triggered worker function, never in here.
	cfg.Export.InProcessWorker = false
	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	telemetry.Info("lambda_http.ready", map[string]any{"env": cfg.Env})
	return ginadapter.NewV2(app.Router), nil
})

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	p, err := proxy()
	if err != nil {
		telemetry.Error("lambda_http.bootstrap_failed", map[string]any{"error": err.Error()})
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusServiceUnavailable,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":{"code":"unavailable","message":"service failed to start"}}`,
		}, nil
	}
	return p.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(handler)
}
