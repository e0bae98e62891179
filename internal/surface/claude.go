package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// ErrNoAPIKey indicates no Anthropic credentials were configured.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY environment variable is not set")

const claudeSystemPrompt = `You are the execution surface for an automated task orchestrator.
You receive one instruction per task and carry it out, reporting progress in short plain text.
When asked "are you done?", answer "yes, done" only if the task is completely finished;
otherwise say what remains. If you need a human decision, ask for it explicitly.`

// ClaudeConfig contains configuration for the Claude surface.
type ClaudeConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens bounds each reply.
	MaxTokens int64
	// Conventions are appended to the system prompt.
	Conventions []string
}

// Claude is a surface backed by the Anthropic Messages API. Each task keeps
// its own conversation; every command is one request whose text reply
// becomes a signal.
type Claude struct {
	*pipe
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	system    string
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	conversations map[string]*conversation
}

type conversation struct {
	mu       sync.Mutex
	messages []anthropic.MessageParam
}

// NewClaude creates a Claude surface.
func NewClaude(cfg ClaudeConfig, logger *slog.Logger) (*Claude, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := []option.RequestOption{option.WithMaxRetries(2)}

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, ErrNoAPIKey
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = TranslateModelForBedrock(model)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	system := claudeSystemPrompt
	if len(cfg.Conventions) > 0 {
		system += "\n\nProject conventions:\n- " + strings.Join(cfg.Conventions, "\n- ")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Claude{
		pipe:          newPipe(64),
		client:        anthropic.NewClient(opts...),
		model:         model,
		maxTokens:     maxTokens,
		system:        system,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		conversations: make(map[string]*conversation),
	}, nil
}

// TranslateModelForBedrock converts standard Anthropic model names to Bedrock
// cross-region inference profiles: us.anthropic.{model}-v1:0.
func TranslateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if m, ok := bedrockModels[model]; ok {
		return anthropic.Model(m)
	}
	return model
}

// Model returns the configured model name.
func (c *Claude) Model() anthropic.Model { return c.model }

func (c *Claude) SendInstruction(ctx context.Context, taskID, text string) (Ack, error) {
	if err := c.send(ctx, taskID, text); err != nil {
		return Ack{}, err
	}
	return Ack{CommandID: uuid.NewString(), TaskID: taskID, SentAt: time.Now()}, nil
}

func (c *Claude) SendProbe(ctx context.Context, taskID, text string) error {
	return c.send(ctx, taskID, text)
}

func (c *Claude) Close() error {
	c.fail(ErrClosed)
	c.cancel()
	c.wg.Wait()
	return nil
}

// send queues text on the task's conversation and returns at once; the reply
// is delivered as a signal.
func (c *Claude) send(ctx context.Context, taskID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.alive(); err != nil {
		return err
	}

	c.mu.Lock()
	conv, ok := c.conversations[taskID]
	if !ok {
		conv = &conversation{}
		c.conversations[taskID] = conv
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.exchange(taskID, conv, text)
	}()
	return nil
}

func (c *Claude) exchange(taskID string, conv *conversation, text string) {
	conv.mu.Lock()
	defer conv.mu.Unlock()

	conv.messages = append(conv.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	resp, err := c.client.Messages.New(c.ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: c.system}},
		Messages:  conv.messages,
	})
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Error("claude request failed", "task", taskID, "error", err)
		c.fail(fmt.Errorf("%w: %v", ErrUnavailable, err))
		return
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			if reply.Len() > 0 {
				reply.WriteString("\n")
			}
			reply.WriteString(tb.Text)
		}
	}
	conv.messages = append(conv.messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(reply.String())))
	c.logger.Debug("claude replied", "task", taskID,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	c.emit(models.Signal{TaskID: taskID, Text: reply.String()})
}
