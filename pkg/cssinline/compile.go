// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package cssinline

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/tdewolff/parse/v2"
	tdcss "github.com/tdewolff/parse/v2/css"
)

// styleRule is one selector of a qualified rule, ready to be matched.
type styleRule struct {
	sel          cascadia.Sel
	specificity  cascadia.Specificity
	order        int
	declarations []*css.Declaration
}

type compiledSheet struct {
	rules    []*styleRule
	retained []string
	applied  int
	skipped  int
}

// chunk is the source text of one top level rule.
type chunk struct {
	text   string
	atRule string
}

// splitRules cuts a stylesheet in top level rules. The CSS tokenizer keeps
// braces and semicolons found in strings, comments or url() tokens from
// breaking a rule.
func splitRules(stylesheet string) []chunk {
	res := []chunk{}
	lexer := tdcss.NewLexer(parse.NewInputString(stylesheet))

	buf := new(bytes.Buffer)
	depth := 0
	started := false
	atRule := ""

	flush := func() {
		if text := strings.TrimSpace(buf.String()); text != "" {
			res = append(res, chunk{text: text, atRule: atRule})
		}
		buf.Reset()
		started = false
		atRule = ""
		depth = 0
	}

	for {
		tt, data := lexer.Next()
		if tt == tdcss.ErrorToken {
			break
		}

		if !started {
			switch tt {
			case tdcss.WhitespaceToken, tdcss.CommentToken, tdcss.CDOToken, tdcss.CDCToken:
				continue
			case tdcss.AtKeywordToken:
				atRule = strings.ToLower(string(data))
			}
			started = true
		}

		buf.Write(data)

		switch tt {
		case tdcss.LeftBraceToken:
			depth++
		case tdcss.RightBraceToken:
			depth--
			if depth <= 0 {
				flush()
			}
		case tdcss.SemicolonToken:
			if depth == 0 {
				flush()
			}
		}
	}
	flush()

	return res
}

// compile parses a stylesheet. Qualified rules are split into one
// [styleRule] per selector; what can't be inlined is kept as text.
func compile(stylesheet string) *compiledSheet {
	res := &compiledSheet{}

	for i, c := range splitRules(stylesheet) {
		if c.atRule != "" {
			// @charset has no meaning once embedded in a document.
			if c.atRule != "@charset" {
				res.retained = append(res.retained, c.text)
			}
			continue
		}

		sheet, err := parser.Parse(c.text)
		if err != nil || len(sheet.Rules) != 1 || sheet.Rules[0].Kind != css.QualifiedRule {
			res.skipped++
			continue
		}
		rule := sheet.Rules[0]

		inlined := false
		retained := []string{}
		for _, text := range splitSelectors(rule.Prelude) {
			sel, err := cascadia.ParseWithPseudoElement(text)
			if err != nil || sel.PseudoElement() != "" || rxDynamicPseudo.MatchString(text) {
				retained = append(retained, text)
				continue
			}

			inlined = true
			res.rules = append(res.rules, &styleRule{
				sel:          sel,
				specificity:  sel.Specificity(),
				order:        i,
				declarations: rule.Declarations,
			})
		}

		if inlined {
			res.applied++
		}
		if len(retained) > 0 {
			res.retained = append(res.retained, formatRule(retained, rule.Declarations))
		}
	}

	return res
}

// splitSelectors splits a selector list on its top level commas.
func splitSelectors(prelude string) []string {
	res := []string{}
	depth := 0
	var quote rune
	start := 0
	escaped := false

	for i, r := range prelude {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
		case r == ',' && depth == 0:
			if s := strings.TrimSpace(prelude[start:i]); s != "" {
				res = append(res, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(prelude[start:]); s != "" {
		res = append(res, s)
	}

	return res
}

func formatRule(selectors []string, declarations []*css.Declaration) string {
	b := new(strings.Builder)
	b.WriteString(strings.Join(selectors, ", "))
	b.WriteString(" {")
	for _, decl := range declarations {
		b.WriteString(" ")
		b.WriteString(formatDeclaration(strings.ToLower(decl.Property), decl))
	}
	b.WriteString(" }")
	return b.String()
}
