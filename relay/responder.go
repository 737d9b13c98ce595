package relay

import (
	"context"
	"fmt"
	"strings"
)

// Responder 是文本进/文本出协作者：给定一条用户文本，产出一条回复。
// 默认实现为 CannedResponder，可替换为任意满足同一签名的上游模型。
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// cannedRule 将一组触发词映射到一条固定回复。
type cannedRule struct {
	triggers []string
	reply    string
}

// CannedResponder 按有序规则表生成回复：大小写不敏感的子串匹配，
// 首条命中即返回；无命中时按固定模板回显输入。
type CannedResponder struct {
	rules []cannedRule
}

// NewCannedResponder 创建默认规则表的应答器。
func NewCannedResponder() *CannedResponder {
	return &CannedResponder{
		rules: []cannedRule{
			{triggers: []string{"hello", "hi"}, reply: "Hello! How can I help you today?"},
			{triggers: []string{"how are you"}, reply: "I'm doing well, thank you for asking! How are you?"},
			{triggers: []string{"what is your name"}, reply: "I'm MedForce AI, your meeting assistant. I'm here to help with your meeting needs."},
			{triggers: []string{"help"}, reply: "I can help you with meeting assistance, answering questions, and providing information. What would you like to know?"},
			{triggers: []string{"bye", "goodbye"}, reply: "Goodbye! Have a great day!"},
			{triggers: []string{"thank"}, reply: "You're welcome! Is there anything else I can help you with?"},
		},
	}
}

// Respond 实现 Responder。同步且有界，不需要超时。
func (r *CannedResponder) Respond(_ context.Context, message string) (string, error) {
	lower := strings.ToLower(message)
	for _, rule := range r.rules {
		for _, trigger := range rule.triggers {
			if strings.Contains(lower, trigger) {
				return rule.reply, nil
			}
		}
	}
	return fmt.Sprintf("I understand you said: '%s'. How can I assist you further?", message), nil
}
