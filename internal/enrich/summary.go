package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/pkg/anthropic"
)

// DefaultSummaryModel is used when no model is configured.
const DefaultSummaryModel = "claude-haiku-4-5-20251001"

const maxTags = 5

const summaryPrompt = `あなたは法人営業のリサーチ担当です。求人情報から企業を営業担当者向けに要約します。
出力は次の形式のJSONのみとし、前後に説明文を付けないでください。
{"summary": "120文字以内の日本語の要約", "tags": ["業種や特徴を表す短いタグ", "..."]}
タグは最大5個。情報が不足していて要約できない場合は {"summary": "", "tags": []} を返してください。`

// ClaudeSummarizer writes lead summaries with the Messages API.
type ClaudeSummarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeSummarizer returns a Summarizer; an empty model selects
// DefaultSummaryModel.
func NewClaudeSummarizer(client anthropic.Client, model string, maxTokens int64) *ClaudeSummarizer {
	if model == "" {
		model = DefaultSummaryModel
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &ClaudeSummarizer{client: client, model: model, maxTokens: maxTokens}
}

// Summarize asks the model for a summary of lead.
func (c *ClaudeSummarizer) Summarize(ctx context.Context, lead *model.Lead) (*Summary, error) {
	temp := 0.2
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(summaryPrompt, "1h"),
		Messages:    []anthropic.Message{{Role: anthropic.RoleUser, Content: leadPrompt(lead)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: summarize lead %d", lead.ID)
	}
	resp.Usage.Log(c.model, "lead_summary")
	return parseSummary(resp.Text())
}

func leadPrompt(lead *model.Lead) string {
	var b strings.Builder
	field := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	field("企業名", lead.CompanyName)
	field("業種", lead.Industry)
	field("所在地", lead.Address)
	field("設立", lead.Establishment)
	field("従業員数", lead.EmployeeCount)
	field("売上高", lead.Revenue)
	field("募集職種", lead.JobTitle)
	field("給与", lead.SalaryText)
	desc := []rune(lead.JobDescription)
	if len(desc) > 1500 {
		desc = desc[:1500]
	}
	field("仕事内容", string(desc))
	return b.String()
}

// parseSummary reads the JSON object in text, tolerating prose or code
// fences around it.
func parseSummary(text string) (*Summary, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("enrich: no JSON object in summary response %q", text)
	}
	var s Summary
	if err := json.Unmarshal([]byte(text[start:end+1]), &s); err != nil {
		return nil, eris.Wrap(err, "enrich: decode summary response")
	}
	s.Text = strings.TrimSpace(s.Text)
	if s.Text == "" {
		return nil, nil
	}
	tags := s.Tags[:0]
	seen := map[string]bool{}
	for _, t := range s.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	s.Tags = tags
	return &s, nil
}
