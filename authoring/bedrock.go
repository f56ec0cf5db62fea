package authoring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/logger"
)

// BedrockGenerator implements Generator using AWS Bedrock.
type BedrockGenerator struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int
	logger    logger.Logger
}

// NewBedrockGenerator creates a new Bedrock-based plan generator.
func NewBedrockGenerator(region, modelID string, maxTokens int, log logger.Logger) (*BedrockGenerator, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockGenerator{
		client:    bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
		logger:    log,
	}, nil
}

// Generate produces a draft test case for the objective, grounded in the
// page blueprint.
func (g *BedrockGenerator) Generate(ctx context.Context, objective string, bp *blueprint.UIBlueprint) (*Draft, error) {
	prompt, err := BuildPrompt(objective, bp)
	if err != nil {
		return nil, err
	}

	requestBody := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        g.maxTokens,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "text",
						"text": prompt,
					},
				},
			},
		},
	}

	payloadBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payloadBytes,
	})
	if err != nil {
		g.logger.Error(ctx, "bedrock invocation failed", map[string]interface{}{
			"error":    err.Error(),
			"model_id": g.modelID,
		})
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal response: %v", ErrGenerationFailed, err)
	}
	if len(response.Content) == 0 {
		return nil, fmt.Errorf("%w: no content in response", ErrGenerationFailed)
	}

	plan, err := ParsePlan([]byte(response.Content[0].Text), bp)
	if err != nil {
		return nil, err
	}

	sanitized, err := SanitizeObjective(objective)
	if err != nil {
		return nil, err
	}

	g.logger.Info(ctx, "test case generated", map[string]interface{}{
		"model_id":       g.modelID,
		"target_url":     bp.URL,
		"steps":          len(plan.Steps),
		"parameter_sets": len(plan.ParameterSets),
	})

	return &Draft{
		Name:          draftName(sanitized),
		Objective:     sanitized,
		TargetURL:     bp.URL,
		Steps:         plan.Steps,
		ParameterSets: plan.ParameterSets,
	}, nil
}

// draftName derives a short display name from the objective.
func draftName(objective string) string {
	const maxName = 80
	if len(objective) <= maxName {
		return objective
	}
	return objective[:maxName]
}
