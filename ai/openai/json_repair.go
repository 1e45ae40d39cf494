// Copyright 2025 Poiesic Systems
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


package openai

import (
	"regexp"
	"strings"
)

// unquotedKeyRe matches an object key that lost its opening quote but
// kept the closing one, e.g. `, type":` for `, "type":`. Small local
// models produce this shape often enough to be worth repairing before
// retrying the whole call.
var unquotedKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z][A-Za-z_ ]*)":`)

// trailingCommaRe matches a comma directly before a closing bracket.
var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// repairJSON attempts to fix common JSON formatting issues from LLM responses.
func repairJSON(s string) string {
	s = unquotedKeyRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := unquotedKeyRe.FindStringSubmatch(m)
		return sub[1] + `"` + strings.TrimSpace(sub[2]) + `":`
	})
	return trailingCommaRe.ReplaceAllString(s, "$1")
}
