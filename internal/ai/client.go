package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

var ErrNoResponse = errors.New("no response from AI")

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *Client) SetModel(model string) {
	c.model = model
}

// Draft is a task extracted from a free-text message. Empty Date means
// today; empty Time means no reminder.
type Draft struct {
	Text           string  `json:"text"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Repeat         string  `json:"repeat"`
	Confidence     float64 `json:"confidence"`
	NeedMoreInfo   bool    `json:"need_more_info"`
	FollowUpPrompt string  `json:"follow_up_prompt"`
	RawResponse    string  `json:"-"`
}

const systemPromptTemplate = `你是個人行事曆的輸入助理，負責把用戶的一句話轉換成一筆待辦事項。

當前時間: %s

輸出欄位：
- text: 待辦內容，去掉日期、時間與重複的描述，保留用戶原本的語言
- date: 日期 (格式: YYYY-MM-DD)，沒有提到日期時使用今天
- time: 提醒時間 (格式: HH:MM)，沒有提到時間時為空字串
- repeat: 重複方式，只能是 none、daily、weekly、monthly 其中之一
- confidence: 0 到 1 之間的信心分數
- need_more_info: 內容不足以建立待辦時設為 true
- follow_up_prompt: need_more_info 為 true 時向用戶追問的問題，否則為空字串

重要規則：
1. 當用戶使用相對時間（如「明天」、「下週一」），請根據當前時間計算出具體日期。
2. 「每天」對應 daily，「每週」或「每個星期X」對應 weekly，「每月」對應 monthly，日期設為第一次發生的那天。
3. 提醒時間必須落在同一天之內。`

func getSystemPrompt(now time.Time) string {
	return fmt.Sprintf(systemPromptTemplate, now.Format("2006-01-02 15:04 (Monday)"))
}

// JSON Schema for structured output
var draftSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"text": {
			"type": "string",
			"description": "The task text without date, time or repeat words"
		},
		"date": {
			"type": "string",
			"description": "Day of the task in YYYY-MM-DD"
		},
		"time": {
			"type": "string",
			"description": "Reminder time in HH:MM, or empty for no reminder"
		},
		"repeat": {
			"type": "string",
			"enum": ["none", "daily", "weekly", "monthly"],
			"description": "How the task repeats"
		},
		"confidence": {
			"type": "number",
			"minimum": 0,
			"maximum": 1,
			"description": "Confidence score between 0 and 1"
		},
		"need_more_info": {
			"type": "boolean",
			"description": "Whether the message lacks what is needed to create a task"
		},
		"follow_up_prompt": {
			"type": "string",
			"description": "The follow-up question to ask user when need_more_info is true"
		}
	},
	"required": ["text", "date", "time", "repeat", "confidence", "need_more_info", "follow_up_prompt"],
	"additionalProperties": false
}`)

// ParseTask asks the model to turn a message into a Draft.
func (c *Client) ParseTask(ctx context.Context, message string, now time.Time) (*Draft, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: getSystemPrompt(now),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: message,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "task_draft",
				Schema: draftSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrNoResponse
	}

	content := resp.Choices[0].Message.Content
	draft := &Draft{RawResponse: content}

	if err := json.Unmarshal([]byte(content), draft); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	draft.Text = strings.TrimSpace(draft.Text)
	draft.Time = strings.TrimSpace(draft.Time)

	return draft, nil
}
