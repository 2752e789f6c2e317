// Copyright (c) 2024 The Brainpluck Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package hir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	lx := NewLexer(src)
	var out []Token
	for {
		tok := lx.Next()
		out = append(out, tok)
		if tok.Kind == TkEOF {
			return out
		}
	}
}

func TestLexerPunctuationAndOperators(t *testing.T) {
	toks := lexAll(t, "-> == != <= >= && ||")
	kinds := []TokenKind{TkArrow, TkEq, TkNe, TkLe, TkGe, TkAndAnd, TkOrOr, TkEOF}
	require.Len(t, toks, len(kinds))
	for i, k := range kinds {
		require.Equal(t, k, toks[i].Kind, "token %d", i)
	}
}

func TestLexerKeywordsAndIdents(t *testing.T) {
	toks := lexAll(t, "fn foo let x u32 true")
	require.Equal(t, KwFn, toks[0].Kind)
	require.Equal(t, TkIdent, toks[1].Kind)
	require.Equal(t, "foo", toks[1].Lexeme)
	require.Equal(t, KwLet, toks[2].Kind)
	require.Equal(t, TkIdent, toks[3].Kind)
	require.Equal(t, KwU32, toks[4].Kind)
	require.Equal(t, KwTrue, toks[5].Kind)
}

func TestLexerIntLiteral(t *testing.T) {
	toks := lexAll(t, "0 255 4294967295")
	require.Equal(t, "0", toks[0].Lexeme)
	require.Equal(t, "255", toks[1].Lexeme)
	require.Equal(t, "4294967295", toks[2].Lexeme)
}

func TestLexerStringLiteralEscapes(t *testing.T) {
	toks := lexAll(t, `"hello\nworld"`)
	require.Equal(t, LitStr, toks[0].Kind)
	require.Equal(t, "hello\nworld", toks[0].Lexeme)
}

func TestLexerLineComment(t *testing.T) {
	toks := lexAll(t, "let x // this is ignored\n= 1;")
	require.Equal(t, KwLet, toks[0].Kind)
	require.Equal(t, TkIdent, toks[1].Kind)
	require.Equal(t, TkAssign, toks[2].Kind)
}

func TestLexerRejectsNonASCIIString(t *testing.T) {
	require.Panics(t, func() {
		lexAll(t, "\"caf\xc3\xa9\"")
	})
}

func TestLexerRejectsUnterminatedString(t *testing.T) {
	require.Panics(t, func() {
		lexAll(t, `"no closing quote`)
	})
}
