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

import (
	"github.com/llm-d-incubation/dial-relay/internal/capability"
)

// Request body example for a model that takes max_completion_tokens and rejects temperature:
// {
//   "messages": [
//     {"role": "user", "content": "What is 2+2?"}
//   ],
//   "max_completion_tokens": 1000
// }

// buildRequestBody builds a fresh chat completion body for the given profile.
// The messages are passed through verbatim.
func buildRequestBody(profile capability.Profile, messages []Message, controls GenerationControls) map[string]any {
	body := profile.Parameters(controls.MaxTokens, controls.Temperature)
	if messages == nil {
		messages = []Message{}
	}
	body["messages"] = messages
	return body
}
