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

import "strings"

// repairJSON fixes object keys that lost their opening quote, a common
// failure of small local models: {content": "x"} becomes {"content": "x"}.
// Everything else is copied unchanged.
func repairJSON(s string) string {
	in := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	for i := 0; i < len(in); i++ {
		ch := in[i]
		b.WriteRune(ch)
		switch {
		case ch == '"' && !escaped(in, i):
			inString = !inString
		case !inString && (ch == '{' || ch == ','):
			j := i + 1
			for j < len(in) && (in[j] == ' ' || in[j] == '\n' || in[j] == '\t' || in[j] == '\r') {
				j++
			}
			k := j
			for k < len(in) && isKeyRune(in[k]) {
				k++
			}
			if k > j && k+1 < len(in) && in[k] == '"' && in[k+1] == ':' {
				b.WriteString(string(in[i+1:j]))
				b.WriteRune('"')
				b.WriteString(string(in[j:k]))
				b.WriteRune('"')
				i = k
			}
		}
	}
	return b.String()
}

// escaped reports whether the rune at i is preceded by an odd number of backslashes.
func escaped(in []rune, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && in[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}
