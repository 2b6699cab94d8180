// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stage

import (
	"fmt"
	"strings"
)

func languagePrompt(excerpt string) string {
	return fmt.Sprintf(`Identify the primary language of this email content.

Reply with only the language name in English (e.g. "English", "Japanese", "Spanish", "Arabic", "French", "Chinese").

Email excerpt: %s`, excerpt)
}

func summaryPrompt(body, language string) string {
	return fmt.Sprintf(`Create a concise summary of this email for a business reviewer.

REQUIREMENTS:
- Write in: %s
- Focus on: business impact, action items, decisions needed
- Length: 2-4 sentences maximum

EMAIL CONTENT:
---
%s
---

SUMMARY:`, language, body)
}

func intentsPrompt(subject, summary, language string, taxonomy []string, noAction string) string {
	return fmt.Sprintf(`Analyze this email and identify every business action it requires.

COMMAND TAXONOMY:
%s

OUTPUT CONTRACT:
- Respond with a JSON array of command names from the taxonomy and nothing else, e.g. ["send_invoice", "follow_up"]
- Do not invent commands outside the taxonomy
- If nothing is required respond with ["%s"]
- Language context: %s

EMAIL SUBJECT: %q
EMAIL SUMMARY: %q

JSON ARRAY:`, strings.Join(taxonomy, ", "), noAction, language, subject, summary)
}

func draftPrompt(subject, body string, commands []string, language, skipToken, style string) string {
	return fmt.Sprintf(`Draft a reply to the email below on behalf of the recipient.

COMMUNICATION STANDARDS:
- Tone: professional, clear, value-driven
- Language: %s

CONTEXT:
Subject: %s
Required actions: %s
Original message: %s

RESPONSE REQUIREMENTS:
- Address every key point
- Include clear next steps
- Length: 4-7 sentences maximum
- Close with an appropriate sign-off

IMPORTANT: Only draft replies to legitimate business communication.
If this is spam, an automated notification or non-business content, respond with exactly: %s

STYLE: %s

REPLY:`, language, subject, strings.Join(commands, ", "), body, skipToken, style)
}

func tonePrompt(excerpt, language string, tones []string) string {
	return fmt.Sprintf(`Classify the overall business tone of this email as exactly one of: %s

Reply with the single label only.

Language: %s
Content: %s

TONE:`, strings.Join(tones, ", "), language, excerpt)
}
