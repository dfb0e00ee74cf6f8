/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dial

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role/content pair sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage wraps text as a single user message.
func UserMessage(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}

// GenerationControls are the numeric controls adapted to each model's dialect.
type GenerationControls struct {
	MaxTokens   int
	Temperature float64
}

// DefaultGenerationControls matches the values the relay has always sent.
func DefaultGenerationControls() GenerationControls {
	return GenerationControls{
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the successful result of Complete.
type CompletionResponse struct {
	RequestID string `json:"request_id"`
	Model     string `json:"model"`
	Text      string `json:"text"`
	Usage     *Usage `json:"usage,omitempty"` // nil when the provider did not report usage
}

// Response example for a DIAL chat completion:
// {
//   "id": "chatcmpl-abc123",
//   "object": "chat.completion",
//   "created": 1699896916,
//   "model": "gpt-4o-2024-05-13",
//   "choices": [
//     {
//       "index": 0,
//       "message": {
//         "role": "assistant",
//         "content": "4"
//       },
//       "finish_reason": "stop"
//     }
//   ],
//   "usage": {
//     "prompt_tokens": 5,
//     "completion_tokens": 1,
//     "total_tokens": 6
//   }
// }
type chatCompletionBody struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

type errorBody struct {
	Error struct {
		Code    any    `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type modelListBody struct {
	Data *[]struct {
		ID string `json:"id"`
	} `json:"data"`
}
